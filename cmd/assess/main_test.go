package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/tmrisk"
	"github.com/brunobiangulo/tmrisk/analysis"
)

func TestParseIssues(t *testing.T) {
	checks, err := parseIssues(" likelihood_of_confusion, ,genericness")
	require.NoError(t, err)
	assert.Equal(t, []tmrisk.IssueCheck{
		{Category: analysis.LikelihoodOfConfusion},
		{Category: analysis.Genericness},
	}, checks)

	checks, err = parseIssues("")
	require.NoError(t, err)
	assert.Nil(t, checks)

	_, err = parseIssues("dilution")
	assert.Error(t, err)
}

func TestParseClasses(t *testing.T) {
	classes, err := parseClasses("30, 32")
	require.NoError(t, err)
	assert.Equal(t, []int{30, 32}, classes)

	for _, bad := range []string{"0", "46", "thirty"} {
		_, err := parseClasses(bad)
		assert.Error(t, err, bad)
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"Coffee", "tea"}, splitList(" Coffee ; tea;", ";"))
	assert.Nil(t, splitList("  ", ";"))
}

func TestWriteResult(t *testing.T) {
	a := &tmrisk.Assessment{ID: "a-1", Mark: "SUNBREW"}
	var buf bytes.Buffer
	require.NoError(t, writeResult(&buf, a))

	var got struct {
		Assessment map[string]any `json:"assessment"`
		Digest     string         `json:"digest"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "SUNBREW", got.Assessment["mark"])
	want, err := a.Digest()
	require.NoError(t, err)
	assert.Equal(t, want, got.Digest)
}

func TestRunRequiresInput(t *testing.T) {
	err := run(flags{})
	assert.ErrorContains(t, err, "--report or --mark")
}
