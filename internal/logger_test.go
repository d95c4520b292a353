package wdinternal

import (
	"testing"

	wdtestutils "github.com/nshenderov/watchdog/testutils"
)

func testLogAddModuleDirPathPrefix(t *testing.T, mdpc *ModuleDirPathCache, prefix string, expectedPrefixList []string) {
	mdpc.addPrefix(prefix)
	if len(mdpc.prefixList) != len(expectedPrefixList) {
		t.Errorf("len(prefixList): want %d, got %d", len(expectedPrefixList), len(mdpc.prefixList))
	}
	for i, expected := range expectedPrefixList {
		if mdpc.prefixList[i] != expected {
			t.Errorf("prefixList[%d]: want %#v, got %#v", i, expected, mdpc.prefixList[i])
		}
	}
}

func testLogStripModuleDirPathPrefix(t *testing.T, mdpc *ModuleDirPathCache, filePath string, expected string) {
	result := mdpc.stripPrefix(filePath)
	if result != expected {
		t.Errorf("%#v: stripPrefix(%#v): want %#v, got %#v", mdpc, filePath, expected, result)
	}
}

func TestLogAddModuleDirPathPrefix(t *testing.T) {
	mdpc := &ModuleDirPathCache{}

	for _, tc := range []struct {
		prefix             string
		expectedPrefixList []string
	}{
		{"a/b", []string{"a/b"}},
		{"a/b/c", []string{"a/b/c", "a/b"}},
		{"a", []string{"a/b/c", "a/b", "a"}},
		{"a", []string{"a/b/c", "a/b", "a"}},
		{"a/b/c/d", []string{"a/b/c/d", "a/b/c", "a/b", "a"}},
		{"a/b", []string{"a/b/c/d", "a/b/c", "a/b", "a"}},
		{"b/b", []string{"a/b/c/d", "a/b/c", "b/b", "a/b", "a"}},
	} {
		testLogAddModuleDirPathPrefix(t, mdpc, tc.prefix, tc.expectedPrefixList)
	}
}

func TestStripPrefixMatch(t *testing.T) {
	mdpc := &ModuleDirPathCache{
		prefixList: []string{"a/b/c/", "c/d/", "e/"},
	}

	for _, tc := range []struct {
		filePath string
		expected string
	}{
		{"a/b/c/d/e/f", "d/e/f"},
		{"c/d/e/f/g", "e/f/g"},
		{"e/f/g/h", "f/g/h"},
	} {
		testLogStripModuleDirPathPrefix(t, mdpc, tc.filePath, tc.expected)
	}
}

func TestStripPrefixNoMatch(t *testing.T) {
	for _, tc := range []struct {
		keepNDirs int
		filePath  string
		expected  string
	}{
		{2, "a/b/c", "a/b/c"},
		{3, "x/y/c/d", "x/y/c/d"},
		{1, "x/y/z/e", "z/e"},
	} {
		testLogStripModuleDirPathPrefix(t, &ModuleDirPathCache{keepNDirs: tc.keepNDirs}, tc.filePath, tc.expected)
	}
}

func testLogConfig(t *testing.T, data string) {
	tlc := wdtestutils.NewTestLogCollect(t, RootLogger, nil)
	defer tlc.RestoreLog()

	wdConfig, err := LoadConfig("", []byte(data))
	if err != nil {
		t.Fatal(err)
	}
	if err := SetLogger(wdConfig.LoggerConfig); err != nil {
		t.Fatal(err)
	}

	log1 := NewCompLogger("Comp1")
	log2 := NewCompLogger("Comp2")

	log1.Debug("debug test")
	log1.Info("info test")
	log1.Warn("warn test")
	log1.Error("error test")

	log2.Debug("debug test")
	log2.Info("info test")
	log2.Warn("warn test")
	log2.Error("error test")
}

func TestLogConfig(t *testing.T) {
	for _, tc := range []struct {
		name string
		data string
	}{
		{"json-info", "watchdog_config:\n  log_config:\n    use_json: true\n    level: info\n"},
		{"text-debug", "watchdog_config:\n  log_config:\n    use_json: false\n    level: debug\n"},
		{"no-src-file", "watchdog_config:\n  log_config:\n    disable_src_file: true\n"},
	} {
		t.Run(tc.name, func(t *testing.T) { testLogConfig(t, tc.data) })
	}
}
