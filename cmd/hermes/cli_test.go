package main

import (
	"bytes"
	"testing"

	"github.com/hermesagent/hermes/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withBaseDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HERMES_BASE_DIR", dir)
	return dir
}

func TestInitCreatesConfig(t *testing.T) {
	dir := withBaseDir(t)
	var out bytes.Buffer
	initCmd.SetOut(&out)
	require.NoError(t, runInit(initCmd, nil))
	assert.Contains(t, out.String(), "initialized Hermes at")

	var second bytes.Buffer
	initCmd.SetOut(&second)
	require.NoError(t, runInit(initCmd, nil))
	assert.Contains(t, second.String(), "already exists")
	_ = dir
}

func TestTaskRequiresOneMode(t *testing.T) {
	withBaseDir(t)
	taskPrompt, taskList, taskDelete = "", false, ""
	err := runTask(taskCmd, nil)
	require.Error(t, err)
	assert.Equal(t, core.KindInput, core.KindOf(err))
}

func TestTaskCreateAndList(t *testing.T) {
	withBaseDir(t)
	taskPrompt, taskList, taskDelete = "research quantum annealing", false, ""
	var out bytes.Buffer
	taskCmd.SetOut(&out)
	require.NoError(t, runTask(taskCmd, nil))
	assert.Contains(t, out.String(), "scheduled task")

	taskPrompt, taskList = "", true
	var listOut bytes.Buffer
	taskCmd.SetOut(&listOut)
	require.NoError(t, runTask(taskCmd, nil))
	assert.Contains(t, listOut.String(), "research quantum annealing")
}

func TestTaskDeleteMissingIsNotFound(t *testing.T) {
	withBaseDir(t)
	taskPrompt, taskList, taskDelete = "", false, "2099-9999"
	err := runTask(taskCmd, nil)
	require.Error(t, err)
	assert.Equal(t, core.KindNotFound, core.KindOf(err))
}

func TestHistoryListEmpty(t *testing.T) {
	withBaseDir(t)
	historyLimit, historyExport, historyDelete = 20, "", ""
	var out bytes.Buffer
	historyCmd.SetOut(&out)
	require.NoError(t, runHistory(historyCmd, nil))
	assert.Contains(t, out.String(), "no history")
}

func TestHistoryExportRequiresColon(t *testing.T) {
	withBaseDir(t)
	historyLimit, historyExport, historyDelete = 20, "missing-colon", ""
	err := runHistory(historyCmd, nil)
	require.Error(t, err)
	assert.Equal(t, core.KindInput, core.KindOf(err))
}

func TestRunRequiresPrompt(t *testing.T) {
	withBaseDir(t)
	runPrompt = ""
	err := runRun(runCmd, nil)
	require.Error(t, err)
	assert.Equal(t, core.KindInput, core.KindOf(err))
}

func TestLogEmptyIsFine(t *testing.T) {
	withBaseDir(t)
	logTaskID, logLines, logFollow = "", 50, false
	var out bytes.Buffer
	logCmd.SetOut(&out)
	require.NoError(t, runLog(logCmd, nil))
	assert.Empty(t, out.String())
}
