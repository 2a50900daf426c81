package mariadb

import (
	"testing"
)

func TestDecodeVector(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    []float32
		wantErr bool
	}{
		{"flat list", "[0.5, 0.25, 1]", []float32{0.5, 0.25, 1}, false},
		{"nested list", "[[0.1, 0.2]]", []float32{0.1, 0.2}, false},
		{"empty nested", "[]", []float32{}, false},
		{"object", `{"a": 1}`, nil, true},
		{"garbage", "not json", nil, true},
		{"strings", `["a", "b"]`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeVector([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeVector() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got[%d] = %f, want %f", i, got[i], tt.want[i])
				}
			}
		})
	}
}
