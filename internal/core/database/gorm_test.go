package database

import (
	"path/filepath"
	"testing"
)

func TestNormalizeMySQLDSN(t *testing.T) {
	tests := []struct {
		name string
		in   string
		user string
		pass string
		want string
	}{
		{
			name: "native dsn untouched",
			in:   "root:pw@tcp(127.0.0.1:3306)/vinyl?parseTime=true",
			want: "root:pw@tcp(127.0.0.1:3306)/vinyl?parseTime=true",
		},
		{
			name: "url with defaults",
			in:   "mysql://root:pw@db:3306/vinyl",
			want: "root:pw@tcp(db:3306)/vinyl?charset=utf8mb4&parseTime=true",
		},
		{
			name: "jdbc with overrides",
			in:   "jdbc:mysql://db:3306/vinyl?useSSL=false&characterEncoding=utf8",
			user: "app",
			pass: "secret",
			want: "app:secret@tcp(db:3306)/vinyl?charset=utf8&parseTime=true&tls=false",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := normalizeMySQLDSN(tc.in, tc.user, tc.pass)
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMaskDSN(t *testing.T) {
	got := maskDSN("root:pw@tcp(db:3306)/vinyl")
	if got != "root:****@tcp(db:3306)/vinyl" {
		t.Fatalf("unexpected mask: %q", got)
	}
}

func TestNewGorm_SQLite(t *testing.T) {
	db, err := NewGorm(Opts{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "vinyl.db"),
		LogLevel: "silent",
	})
	if err != nil {
		t.Fatalf("NewGorm: %v", err)
	}
	var one int
	if err := db.Raw("SELECT 1").Scan(&one).Error; err != nil || one != 1 {
		t.Fatalf("SELECT 1: %v (%d)", err, one)
	}
}

func TestNewGorm_UnsupportedDriver(t *testing.T) {
	if _, err := NewGorm(Opts{Driver: "oracle"}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
