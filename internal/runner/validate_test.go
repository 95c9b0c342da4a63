package runner

import "testing"

func TestValidPackageName(t *testing.T) {
	t.Parallel()

	valid := []string{"a", "cowsay", "Django", "zope.interface", "ruamel.yaml", "python-dateutil", "typing_extensions", "pkg2"}
	for _, name := range valid {
		if !ValidPackageName(name) {
			t.Errorf("ValidPackageName(%q) = false, want true", name)
		}
	}

	invalid := []string{"", "-leading", "trailing-", ".dot", "dot.", "has space", "semi;colon", "sl/ash", "quote'name", "é"}
	for _, name := range invalid {
		if ValidPackageName(name) {
			t.Errorf("ValidPackageName(%q) = true, want false", name)
		}
	}
}

func TestValidModuleName(t *testing.T) {
	t.Parallel()

	valid := []string{"http", "http.server", "a_b", "_private", "pkg.sub.mod"}
	for _, name := range valid {
		if !ValidModuleName(name) {
			t.Errorf("ValidModuleName(%q) = false, want true", name)
		}
	}

	invalid := []string{"", "1abc", "a..b", ".lead", "trail.", "a-b", "a b"}
	for _, name := range invalid {
		if ValidModuleName(name) {
			t.Errorf("ValidModuleName(%q) = true, want false", name)
		}
	}
}

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Django":            "django",
		"typing_extensions": "typing-extensions",
		"ruamel.yaml":       "ruamel-yaml",
		"a--b__c..d":        "a-b-c-d",
		"cowsay":            "cowsay",
	}
	for in, want := range cases {
		if got := NormalizeName(in); got != want {
			t.Errorf("NormalizeName(%q) = %q, want %q", in, got, want)
		}
	}
}
