package raw

import "testing"

func TestConf(t *testing.T) {
	t.Setenv("LOG_LEVEL", " debug ")
	t.Setenv("LOG_CALLER", "Yes")
	t.Setenv("LOG_COLOR", "off")
	t.Setenv("LOG_SAMPLE_EVERY", "10")
	t.Setenv("LOG_BAD_INT", "-4")

	c := New().Prefix("LOG_")
	if got := c.Get("LEVEL", "info"); got != "debug" {
		t.Fatalf("Get = %q", got)
	}
	if got := c.Get("FORMAT", "json"); got != "json" {
		t.Fatalf("Get default = %q", got)
	}
	if !c.GetBool("CALLER", false) || c.GetBool("COLOR", true) || !c.GetBool("UNSET", true) {
		t.Fatal("GetBool")
	}
	if c.GetInt("SAMPLE_EVERY", 0) != 10 || c.GetInt("BAD_INT", 3) != 3 || c.GetInt("LEVEL", 5) != 5 {
		t.Fatal("GetInt")
	}
}
