package log

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scerr "github.com/YuminosukeSato/sparsesc/pkg/errors"
)

func TestLoggerSetOutputAndLevel(t *testing.T) {
	orig := Logger()
	defer SetLogger(orig)

	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(zerolog.InfoLevel)

	l := Logger()
	l.Info().Str("stage", "scoring").Msg("grid started")

	out := buf.String()
	assert.Contains(t, out, "grid started")
	assert.Contains(t, out, `"stage":"scoring"`)
	assert.Contains(t, out, `"lib":"sparsesc"`)
}

func TestInstallWarningSink(t *testing.T) {
	orig := Logger()
	defer func() {
		SetLogger(orig)
		scerr.SetZerologWarnFunc(nil)
	}()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(zerolog.WarnLevel)
	InstallWarningSink()

	scerr.Warn(scerr.NewConvergenceWarning("descent", 100, ""))

	out := buf.String()
	require.NotEmpty(t, out)
	// Structured fields from the warning's zerolog marshaller.
	assert.Contains(t, out, `"algorithm":"descent"`)
	assert.Contains(t, out, `"iterations":100`)
	assert.True(t, strings.Contains(out, `"level":"warn"`))
}
