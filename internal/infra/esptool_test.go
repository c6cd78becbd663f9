package infra

import "testing"

func TestParseMACOutput(t *testing.T) {
	tests := []struct {
		name   string
		out    string
		want   string
		wantOK bool
	}{
		{
			name: "典型的なread_mac出力",
			out: "esptool.py v4.7.0\n" +
				"Serial port /dev/ttyUSB0\n" +
				"Connecting....\n" +
				"Detecting chip type... ESP32\n" +
				"MAC: AA:BB:CC:DD:EE:FF\n" +
				"Hard resetting via RTS pin...\n",
			want:   "AA:BB:CC:DD:EE:FF",
			wantOK: true,
		},
		{
			name:   "行の途中にマーカーがある場合",
			out:    "Chip is ESP32-D0WD (revision 1) MAC: 01:23:45:67:89:ab\n",
			want:   "01:23:45:67:89:ab",
			wantOK: true,
		},
		{
			name:   "末尾の空白は除去される",
			out:    "MAC: aa:bb:cc:dd:ee:ff   \r\n",
			want:   "aa:bb:cc:dd:ee:ff",
			wantOK: true,
		},
		{
			name:   "マーカーなし",
			out:    "A fatal error occurred: Could not connect to an Espressif device\n",
			wantOK: false,
		},
		{
			name:   "マーカーの後が空",
			out:    "MAC: \n",
			wantOK: false,
		},
		{
			name:   "空出力",
			out:    "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseMACOutput(tt.out)
			if ok != tt.wantOK {
				t.Fatalf("parseMACOutput() ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("parseMACOutput() = %q, want %q", got, tt.want)
			}
		})
	}
}
