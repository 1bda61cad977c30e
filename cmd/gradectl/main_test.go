package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const solution = `1) What is TCP?
TCP is a reliable, ordered, connection-oriented stream protocol.
keywords: reliable, ordered, connection (10 pts)
2) Define UDP (5 pts)
UDP is a connectionless datagram protocol.`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, args ...string) (map[string]interface{}, error) {
	t.Helper()
	cmd := rootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		return nil, err
	}
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &payload))
	return payload, nil
}

func TestExtractCommand(t *testing.T) {
	payload, err := run(t, "extract", writeFile(t, "notes.txt", "first line\n\n  second   line "))
	require.NoError(t, err)
	require.Equal(t, "text/plain", payload["content_type"])
	blocks := payload["blocks"].([]interface{})
	require.Len(t, blocks, 2)
	require.Equal(t, "second line", blocks[1].(map[string]interface{})["text"])
}

func TestSegmentCommand(t *testing.T) {
	payload, err := run(t, "segment", writeFile(t, "solution.txt", solution))
	require.NoError(t, err)
	require.Equal(t, 15.0, payload["total_points"])
	require.Len(t, payload["questions"], 2)
}

func TestScoreCommand(t *testing.T) {
	sol := writeFile(t, "solution.txt", solution)
	sub := writeFile(t, "answers.txt", "1) TCP is reliable, ordered and connection based\n2)")

	payload, err := run(t, "score", sol, sub)
	require.NoError(t, err)
	require.Equal(t, 15.0, payload["max_total"])
	breakdown := payload["breakdown"].([]interface{})
	require.Len(t, breakdown, 2)
	require.Equal(t, 0.0, breakdown[1].(map[string]interface{})["awarded"])

	_, err = run(t, "score", sol, sub, "--keyword-weight", "0.9")
	require.Error(t, err)
}

func TestExtractCommandRejectsUnknownFormats(t *testing.T) {
	_, err := run(t, "extract", writeFile(t, "image.gif", "GIF89a"))
	require.Error(t, err)

	_, err = run(t, "extract", filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}
