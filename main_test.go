package main

import "testing"

func TestEnvOr(t *testing.T) {
	t.Setenv("MENU_PAGE_URL", "")
	if got := envOr("MENU_PAGE_URL", defaultMenuPageURL); got != defaultMenuPageURL {
		t.Errorf("envOr with empty var = %q", got)
	}

	t.Setenv("MENU_PAGE_URL", "https://example.com/menus")
	if got := envOr("MENU_PAGE_URL", defaultMenuPageURL); got != "https://example.com/menus" {
		t.Errorf("envOr with set var = %q", got)
	}
}
