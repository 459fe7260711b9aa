package encviewfs

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestSaltProviders(t *testing.T) {
	mod := time.Unix(1234567890, 500000000)
	tests := []struct {
		name   string
		lookup func(string) (SaltProvider, error)
		id     string
		entry  string
		isDir  bool
		want   string
	}{
		{"default file salt", FileSaltProvider, "", "a.txt", false, "1234567890a.txt"},
		{"mtime-name", FileSaltProvider, "mtime-name", "a.txt", false, "1234567890a.txt"},
		{"file mtime", FileSaltProvider, "mtime", "a.txt", false, "1234567890.5"},
		{"file name", FileSaltProvider, "name", "a.txt", false, "a.txt"},
		{"default name salt", NameSaltProvider, "", "a.txt", false, "a.txt"},
		{"filename", NameSaltProvider, "filename", "dir", true, "dir"},
		{"name mtime file", NameSaltProvider, "mtime", "a.txt", false, "1234567890.5"},
		{"name mtime dir", NameSaltProvider, "mtime", "dir", true, "dir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.lookup(tt.id)
			if err != nil {
				t.Fatalf("lookup(%q) error = %v", tt.id, err)
			}
			got, err := p.SaltFor(tt.entry, mod, tt.isDir)
			if err != nil {
				t.Fatalf("SaltFor() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("SaltFor() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFileMtimeSaltRejectsDirectories(t *testing.T) {
	p, err := FileSaltProvider("mtime")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.SaltFor("dir", time.Now(), true); !IsValidationError(err) {
		t.Errorf("SaltFor(dir) error = %v, want validation error", err)
	}
}

func TestSaltLookup(t *testing.T) {
	if _, err := FileSaltProvider("filename"); !errors.Is(err, ErrUnknownSalt) {
		t.Errorf("FileSaltProvider(filename) error = %v, want ErrUnknownSalt", err)
	}
	if _, err := NameSaltProvider("mtime-name"); !errors.Is(err, ErrUnknownSalt) {
		t.Errorf("NameSaltProvider(mtime-name) error = %v, want ErrUnknownSalt", err)
	}
	if got := FileSaltIDs(); !reflect.DeepEqual(got, []string{"mtime", "mtime-name", "name"}) {
		t.Errorf("FileSaltIDs() = %v", got)
	}
	if got := NameSaltIDs(); !reflect.DeepEqual(got, []string{"filename", "mtime"}) {
		t.Errorf("NameSaltIDs() = %v", got)
	}
}

func TestUnixSecondsTruncates(t *testing.T) {
	tests := []struct {
		t    time.Time
		want string
	}{
		{time.Unix(0, 0), "0"},
		{time.Unix(1700000000, 500), "1700000000"},
		{time.Unix(-5, 0), "-5"},
		{time.Unix(-5, 500), "-4"},
		// the double rounds up to the next second before truncation
		{time.Unix(1700000000, 999999999), "1700000001"},
	}
	for _, tt := range tests {
		if got := unixSeconds(tt.t); got != tt.want {
			t.Errorf("unixSeconds(%v) = %q, want %q", tt.t, got, tt.want)
		}
	}
}

func TestFractionalSeconds(t *testing.T) {
	tests := []struct {
		t    time.Time
		want string
	}{
		{time.Unix(0, 0), "0.0"},
		{time.Unix(1700000000, 0), "1700000000.0"},
		{time.Unix(1234567890, 500000000), "1234567890.5"},
		{time.Unix(1700000000, 123456000), "1700000000.123456"},
		{time.Unix(1700000000, 500), "1700000000.0000005"},
		{time.Unix(1700000000, 999999999), "1700000001.0"},
		{time.Unix(-5, 500), "-4.9999995"},
	}
	for _, tt := range tests {
		if got := fractionalSeconds(tt.t); got != tt.want {
			t.Errorf("fractionalSeconds(%v) = %q, want %q", tt.t, got, tt.want)
		}
	}
}
