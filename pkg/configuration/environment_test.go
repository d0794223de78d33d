package configuration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv_FallsBackToGoModRoot(t *testing.T) {
	tmp := t.TempDir()

	requireWriteFile(t, filepath.Join(tmp, "go.mod"), "module example.com/test\n\ngo 1.22\n")
	requireWriteFile(t, filepath.Join(tmp, ".env.local"), "ASSETDESK_TEST_ENV_LOAD=ok\n")

	sub := filepath.Join(tmp, "modules", "importer")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	origWd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	require.NoError(t, os.Chdir(sub))

	_ = os.Unsetenv("ASSETDESK_TEST_ENV_LOAD")
	t.Cleanup(func() { _ = os.Unsetenv("ASSETDESK_TEST_ENV_LOAD") })

	n, err := LoadEnv([]string{".env", ".env.local"})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "ok", os.Getenv("ASSETDESK_TEST_ENV_LOAD"))
}

func TestParse_ImportDefaults(t *testing.T) {
	c := &Configuration{}
	require.NoError(t, c.parse())

	require.Equal(t, "db", c.Import.Backend)
	require.Equal(t, 200, c.Import.BatchSize)
	require.Equal(t, 4, c.Import.Concurrency)
	require.Equal(t, 1000, c.Import.MaxErrorDetails)
	require.Equal(t, "memory", c.Import.ProgressStore)
	require.Contains(t, c.Database.Opts, "dbname=assetdesk")
	require.Equal(t, "localhost:3200", c.SocketAddress)
}

func TestParse_RejectsInvalidImportOptions(t *testing.T) {
	t.Setenv("IMPORT_BATCH_SIZE", "5000")

	c := &Configuration{}
	err := c.parse()
	require.Error(t, err)
	require.Contains(t, err.Error(), "BatchSize")
}

func TestImportOptions_Validate(t *testing.T) {
	t.Parallel()

	valid := func() ImportOptions {
		return ImportOptions{
			Backend:         "db",
			BatchSize:       200,
			Concurrency:     4,
			MaxRetries:      2,
			MaxErrorDetails: 1000,
			MaxFileSize:     1 << 20,
			ProgressStore:   "memory",
		}
	}

	cases := []struct {
		name   string
		mutate func(o *ImportOptions)
		ok     bool
	}{
		{name: "defaults", mutate: func(o *ImportOptions) {}, ok: true},
		{name: "memory backend", mutate: func(o *ImportOptions) { o.Backend = "memory" }, ok: true},
		{name: "unknown backend", mutate: func(o *ImportOptions) { o.Backend = "sqlite" }},
		{name: "zero batch", mutate: func(o *ImportOptions) { o.BatchSize = 0 }},
		{name: "too much concurrency", mutate: func(o *ImportOptions) { o.Concurrency = 64 }},
		{name: "negative retries", mutate: func(o *ImportOptions) { o.MaxRetries = -1 }},
		{name: "redis store", mutate: func(o *ImportOptions) { o.ProgressStore = "redis" }, ok: true},
		{name: "unknown store", mutate: func(o *ImportOptions) { o.ProgressStore = "disk" }},
	}

	for _, tc := range cases {
		o := valid()
		tc.mutate(&o)
		err := o.Validate()
		if tc.ok {
			require.NoError(t, err, tc.name)
		} else {
			require.Error(t, err, tc.name)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	require.Equal(t, logrus.DebugLevel, ParseLogLevel("debug"))
	require.Equal(t, logrus.PanicLevel, ParseLogLevel("silent"))
	require.Equal(t, logrus.ErrorLevel, ParseLogLevel("verbose"))
}

func requireWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
