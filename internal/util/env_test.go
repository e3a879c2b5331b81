package util

import (
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("WISPFLOW_TEST_VAR", "set")
	if got := GetEnv("WISPFLOW_TEST_VAR", "fallback"); got != "set" {
		t.Errorf("GetEnv = %q", got)
	}
	if got := GetEnv("WISPFLOW_TEST_UNSET", "fallback"); got != "fallback" {
		t.Errorf("GetEnv = %q", got)
	}
}

func TestParseBoolEnv(t *testing.T) {
	cases := []struct {
		val  string
		def  bool
		want bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{" on ", false, true},
		{"false", true, false},
		{"0", true, false},
		{"off", true, false},
		{"", true, true},
		{"maybe", false, false},
		{"maybe", true, true},
	}
	for _, tc := range cases {
		t.Setenv("WISPFLOW_TEST_BOOL", tc.val)
		if got := ParseBoolEnv("WISPFLOW_TEST_BOOL", tc.def); got != tc.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tc.val, tc.def, got, tc.want)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("WISPFLOW_TEST_DUR", "90s")
	if got := ParseDurationEnv("WISPFLOW_TEST_DUR", time.Minute); got != 90*time.Second {
		t.Errorf("ParseDurationEnv = %v", got)
	}
	t.Setenv("WISPFLOW_TEST_DUR", "not-a-duration")
	if got := ParseDurationEnv("WISPFLOW_TEST_DUR", time.Minute); got != time.Minute {
		t.Errorf("ParseDurationEnv = %v, want default", got)
	}
	t.Setenv("WISPFLOW_TEST_DUR", "")
	if got := ParseDurationEnv("WISPFLOW_TEST_DUR", time.Minute); got != time.Minute {
		t.Errorf("ParseDurationEnv = %v, want default", got)
	}
}
