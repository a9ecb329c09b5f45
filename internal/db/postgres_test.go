package db

import "testing"

func TestMigrationURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"postgres://u:p@db:5432/eventdesk?sslmode=disable", "pgx5://u:p@db:5432/eventdesk?sslmode=disable"},
		{"postgresql://db/eventdesk", "pgx5://db/eventdesk"},
		{"pgx5://db/eventdesk", "pgx5://db/eventdesk"},
	}
	for _, tc := range tests {
		if got := MigrationURL(tc.in); got != tc.want {
			t.Errorf("MigrationURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
