package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"fission/internal/daemonctl"
	"fission/internal/deps"
	"fission/internal/project"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func statusLines(snap *daemonctl.Snapshot, colorize bool) []string {
	lines := renderSectionHeader("Daemon", colorize)
	if snap.Running {
		msg := "Running"
		if snap.PID > 0 {
			msg = fmt.Sprintf("Running (pid %d)", snap.PID)
		}
		lines = append(lines, renderStatusLine("Fission", statusOK, msg, colorize))
	} else {
		lines = append(lines, renderStatusLine("Fission", statusWarn, "Not running", colorize))
	}
	lines = append(lines, renderStatusLine("Database", statusInfo, snap.DatabasePath, colorize))

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Projects", colorize)...)
	for _, status := range []project.Status{project.StatusPending, project.StatusProcessing, project.StatusCompleted, project.StatusFailed} {
		kind := statusInfo
		if status == project.StatusFailed && snap.ProjectStats[status] > 0 {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(string(status), kind, fmt.Sprintf("%d", snap.ProjectStats[status]), colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
	lines = append(lines, dependencyLines(snap.Dependencies, colorize)...)

	if len(snap.Checks) > 0 {
		lines = append(lines, "")
		lines = append(lines, renderSectionHeader("Preflight", colorize)...)
		for _, check := range snap.Checks {
			kind := statusOK
			if !check.Passed {
				kind = statusError
			}
			lines = append(lines, renderStatusLine(check.Name, kind, check.Detail, colorize))
		}
	}
	return lines
}

func dependencyLines(statuses []deps.Status, colorize bool) []string {
	missing := deps.MissingRequired(statuses)
	summaryKind := statusOK
	summary := fmt.Sprintf("%d of %d available", len(statuses)-countUnavailable(statuses), len(statuses))
	if len(missing) > 0 {
		summaryKind = statusError
	}
	lines := []string{renderStatusLine("Summary", summaryKind, summary, colorize)}
	for _, status := range statuses {
		switch {
		case status.Available:
			lines = append(lines, renderStatusLine(status.Name, statusOK, fmt.Sprintf("Ready (command: %s)", status.Command), colorize))
		case status.Optional:
			lines = append(lines, renderStatusLine(status.Name, statusWarn, status.Detail, colorize))
		default:
			detail := status.Detail
			if detail == "" {
				detail = "not available"
			}
			lines = append(lines, renderStatusLine(status.Name, statusError, detail, colorize))
		}
	}
	if len(missing) > 0 {
		lines = append(lines, statusIndent+"Missing dependencies: "+strings.Join(missing, ", "))
	}
	return lines
}

func countUnavailable(statuses []deps.Status) int {
	n := 0
	for _, status := range statuses {
		if !status.Available {
			n++
		}
	}
	return n
}
