package format

const templates = `
{{- define "execution" -}}
# Task Execution ({{ upper .Mode }} mode)

**Task ID:** {{ .TaskID }}
**State:** {{ .State }}
**Success:** {{ yesno .Success }}
**Final Completion:** {{ .FinalStats.Percentage }}%
{{- if .TotalSections }}
**Sections:** {{ .SectionsProcessed }}/{{ .TotalSections }}
{{- end }}
{{- if .TotalTodos }}
**Todos:** {{ .TodosCompleted }}/{{ .TotalTodos }}
{{- end }}
{{ if .Progression }}
## Execution Progress

{{ range .Progression -}}
- [{{ check .Completed }}] **{{ .Message }}**
{{- if eq .Type "section" }}
  - Section: "{{ .SectionName }}"
{{- else if .TodoText }}
  - Todo: "{{ .TodoText }}"{{ if .Ref }} ({{ .Ref }}){{ end }}
{{- end }}
{{- if .Error }}
  - Error: {{ .Error }}
{{- end }}
{{ end -}}
{{ end }}
{{- if .StatusUpdate }}
## Status Update

{{ .StatusUpdate.From }} -> {{ .StatusUpdate.To }}: {{ if .StatusUpdate.Applied }}applied{{ else }}not applied{{ if .StatusUpdate.Error }} ({{ .StatusUpdate.Error }}){{ end }}{{ end }}
{{ end }}
{{- if .Failures }}
## Failures

{{ range .Failures -}}
- {{ if .Ref }}{{ .Ref }}: {{ end }}{{ .Error }}
{{ end -}}
{{ end }}
## Summary

{{ .Message }}
{{- end }}

{{- define "task_info" -}}
# Task Information

**Title:** {{ .Title }}
**Status:** {{ .Status }}
**Type:** {{ .Type }}
**ID:** {{ .ID }}
{{- if .URL }}
**URL:** {{ .URL }}
{{- end }}

## Todo Statistics

- **Total:** {{ .TodoStats.Total }}
- **Completed:** {{ .TodoStats.Completed }}
- **Progress:** {{ .TodoStats.Percentage }}%

## Status Information

**Current:** {{ .StatusInfo.Current }}
**Available transitions:** {{ orNone (join .StatusInfo.Available ", ") }}
**Recommended:** {{ orNone .StatusInfo.Recommended }}

**Next todos:** {{ orNone (join .TodoStats.NextTodos ", ") }}
{{- end }}

{{- define "task_created" -}}
# Task Created

**Title:** {{ .Title }}
**Type:** {{ .Type }}
**Status:** {{ .Status }}
**ID:** {{ .ID }}
{{- if .URL }}
**URL:** {{ .URL }}
{{- end }}

Task created successfully and ready for execution.
{{- end }}

{{- define "task_updated" -}}
# Task Updated

**Task ID:** {{ .TaskID }}
**Updated fields:** {{ join .Fields ", " }}
{{- if .Status }}
**New Status:** {{ .Status }}
{{- end }}

Task updated successfully.
{{- end }}

{{- define "template" -}}
# Template: {{ .TaskType }}

{{ .Text }}
{{- end }}

{{- define "analysis" -}}
# Todo Analysis

**Task ID:** {{ .TaskID }}
**Total todos:** {{ .Stats.Total }}
**Completed:** {{ .Stats.Completed }}
**Progress:** {{ .Stats.Percentage }}%

## Insights

{{ range .Insights }}- {{ . }}
{{ else }}_None._
{{ end }}
## Recommendations

{{ range .Recommendations }}- {{ . }}
{{ else }}_None._
{{ end }}
{{- if .Blockers }}
## Blockers

{{ range .Blockers }}- {{ . }}
{{ end }}
{{- end }}
{{- end }}

{{- define "todos_updated" -}}
# Todos Updated

**Task ID:** {{ .TaskID }}
**Successfully updated:** {{ .Updated }}
**Failed:** {{ .Failed }}
{{ if .Failures }}
## Failures

{{ range .Failures }}- {{ if .Ref }}{{ .Ref }}: {{ end }}{{ .Error }}
{{ end }}
{{- end }}
Batch todo update completed.
{{- end }}

{{- define "dev_summary" -}}
# Development Summary: {{ .Title }}

**Task ID:** {{ .TaskID }}
**Status:** {{ .Status }}
**Progress:** {{ .Stats.Completed }}/{{ .Stats.Total }} ({{ .Stats.Percentage }}%)

## Completed

{{ range .CompletedTodos }}- {{ . }}
{{ else }}_Nothing completed yet._
{{ end }}
## Remaining

{{ range .RemainingTodos }}- {{ . }}
{{ else }}_Nothing remaining._
{{ end }}
## Changed Files

{{ range .ChangedFiles }}- ` + "`{{ . }}`" + `
{{ else }}_No uncommitted changes detected._
{{ end }}
{{- if .TestTodos }}
## Suggested Test Todos

{{ range .TestTodos }}- [ ] {{ . }}
{{ end }}
{{- end }}
{{- end }}
`
