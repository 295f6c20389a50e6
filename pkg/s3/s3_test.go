package s3

import (
	"context"
	"testing"
)

func TestEncodeSHA256(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "empty file digest",
			input: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
			want:  "47DEQpj8HBSa+/TImW+5JCeuQeRkm5NMpJWZG3hSuFU=",
		},
		{name: "missing", input: "", wantErr: true},
		{name: "not hex", input: "zz", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := encodeSHA256(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("encodeSHA256() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("encodeSHA256() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewClientRejectsHalfCredentials(t *testing.T) {
	if _, err := NewClient(context.Background(), Options{AccessKey: "key"}); err == nil {
		t.Fatal("NewClient() error = nil, want error for missing secret key")
	}
}

func TestNilClient(t *testing.T) {
	var c *Client
	if err := c.HeadBucket(context.Background(), "bucket"); err == nil {
		t.Fatal("HeadBucket() on nil client returned nil error")
	}
}
