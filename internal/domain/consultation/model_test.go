package consultation

import "testing"

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"valid", Request{Name: "Asha", Mobile: "9876543210", Location: "Tamil Nadu"}, nil},
		{"short mobile", Request{Name: "Asha", Mobile: "98765", Location: "Tamil Nadu"}, ErrInvalidMobile},
		{"letters in mobile", Request{Name: "Asha", Mobile: "98765abcde", Location: "Goa"}, ErrInvalidMobile},
		{"unknown location", Request{Name: "Asha", Mobile: "9876543210", Location: "Atlantis"}, ErrUnknownLocation},
		{"union territory", Request{Name: "Asha", Mobile: "9876543210", Location: "Puducherry"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.Validate(); got != tt.want {
				t.Errorf("Validate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequest_NormalizeAndRow(t *testing.T) {
	r := Request{Name: "  Asha ", Mobile: " 9876543210", Location: "Kerala "}.Normalize()
	row := r.Row()
	if row["name"] != "Asha" || row["mobile"] != "9876543210" || row["location"] != "Kerala" {
		t.Errorf("Row() = %v", row)
	}
	if len(Locations) != 36 {
		t.Errorf("len(Locations) = %d, want 36", len(Locations))
	}
}
