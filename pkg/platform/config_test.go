package platform

import "testing"

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		val  string
		want int
	}{
		{val: "", want: 7},
		{val: "250", want: 250},
		{val: " 40 ", want: 40},
		{val: "-3", want: -3},
		{val: "fast", want: 7},
	}
	for _, tt := range tests {
		t.Setenv("EOSBOT_TEST_INT", tt.val)
		if got := GetEnvInt("EOSBOT_TEST_INT", 7); got != tt.want {
			t.Errorf("GetEnvInt(%q) = %d, want %d", tt.val, got, tt.want)
		}
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		val  string
		def  bool
		want bool
	}{
		{val: "", def: true, want: true},
		{val: "1", def: false, want: true},
		{val: "TRUE", def: false, want: true},
		{val: "false", def: true, want: false},
		{val: "0", def: true, want: false},
		{val: "maybe", def: true, want: true},
	}
	for _, tt := range tests {
		t.Setenv("EOSBOT_TEST_BOOL", tt.val)
		if got := GetEnvBool("EOSBOT_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("GetEnvBool(%q, %v) = %v, want %v", tt.val, tt.def, got, tt.want)
		}
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("EOSBOT_TEST_STR", "")
	if got := GetEnv("EOSBOT_TEST_STR", "dflt"); got != "dflt" {
		t.Fatalf("empty var: got %q", got)
	}
	t.Setenv("EOSBOT_TEST_STR", "x")
	if got := GetEnv("EOSBOT_TEST_STR", "dflt"); got != "x" {
		t.Fatalf("set var: got %q", got)
	}
}
