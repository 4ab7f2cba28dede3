package browser

import "testing"

func TestParsePath(t *testing.T) {
	cases := []struct {
		raw    string
		bucket string
		prefix string
		ok     bool
	}{
		{"s3://logs/2026/app/", "logs", "2026/app/", true},
		{"s3://logs/2026/app", "logs", "2026/app/", true},
		{"logs/2026", "logs", "2026/", true},
		{"logs", "logs", "", true},
		{"s3://logs", "logs", "", true},
		{"s3://logs/", "logs", "", true},
		{"  s3://logs/a ", "logs", "a/", true},
		{"", "", "", false},
		{"s3://", "", "", false},
	}
	for _, tc := range cases {
		bucket, prefix, err := ParsePath(tc.raw)
		if tc.ok != (err == nil) {
			t.Errorf("ParsePath(%q): err = %v, want ok=%v", tc.raw, err, tc.ok)
			continue
		}
		if bucket != tc.bucket || prefix != tc.prefix {
			t.Errorf("ParsePath(%q) = (%q, %q), want (%q, %q)", tc.raw, bucket, prefix, tc.bucket, tc.prefix)
		}
	}
}

func TestParentPrefix(t *testing.T) {
	cases := map[string]string{
		"a/b/c/": "a/b/",
		"a/b/":   "a/",
		"a/":     "",
		"":       "",
	}
	for prefix, want := range cases {
		if got := ParentPrefix(prefix); got != want {
			t.Errorf("ParentPrefix(%q) = %q, want %q", prefix, got, want)
		}
	}
}

func TestDisplaySegment(t *testing.T) {
	cases := map[string]string{
		"a/b/c/":    "c",
		"a/b/c.txt": "c.txt",
		"top/":      "top",
		"file":      "file",
	}
	for path, want := range cases {
		if got := DisplaySegment(path); got != want {
			t.Errorf("DisplaySegment(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestContextString(t *testing.T) {
	if got := (Context{}).String(); got != "s3://" {
		t.Errorf("bucket list = %q", got)
	}
	ctx := Context{Profile: "prod", Bucket: "logs", Prefix: "2026/"}
	if got := ctx.String(); got != "s3://logs/2026/" {
		t.Errorf("context = %q", got)
	}
}
