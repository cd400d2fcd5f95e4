package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/book-expert/anki-speech/internal/batch"
	"github.com/book-expert/anki-speech/internal/core"
)

func printReport(out io.Writer, report batch.Report) {
	stats := report.Stats

	writer := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(writer, "Deck:\t%s\n", report.Collection)
	fmt.Fprintf(writer, "Processed:\t%d\n", stats.Processed)
	fmt.Fprintf(writer, "Regenerated:\t%d\n", stats.Regenerated)
	fmt.Fprintf(writer, "Skipped:\t%d\n", stats.Skipped)
	fmt.Fprintf(writer, "Failed:\t%d\n", stats.Failed)

	if report.Cancelled {
		fmt.Fprintf(writer, "Cancelled:\tyes\n")
	}

	_ = writer.Flush()

	if len(stats.Errors) == 0 {
		return
	}

	fmt.Fprintln(out, "\nErrors:")

	for _, failure := range stats.Errors {
		fmt.Fprintf(out, "  %s: %s\n", failure.Label, failure.Message)
	}
}

func printPreview(out io.Writer, items []batch.PreviewItem) {
	writer := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(writer, "NOTE\tCHARACTER\tEMOTION\tACTION\tARTIFACT\tTEXT")

	for _, item := range items {
		if item.Err != nil {
			fmt.Fprintf(writer, "%s\t-\t-\terror\t-\t%v\n", item.Label, item.Err)

			continue
		}

		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n",
			item.Label, item.Character, dash(item.Emotion), item.Action, item.Artifact, item.Text)
	}

	_ = writer.Flush()
}

func printCharacters(out io.Writer, characters map[string]core.VoiceConfig) {
	names := make([]string, 0, len(characters))
	for name := range characters {
		names = append(names, name)
	}

	sort.Strings(names)

	writer := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(writer, "CHARACTER\tVOICE\tPROMPT PREFIX")

	for _, name := range names {
		entry := characters[name]
		fmt.Fprintf(writer, "%s\t%s\t%s\n", name, entry.Voice, dash(entry.PromptPrefix))
	}

	_ = writer.Flush()
}

func dash(value string) string {
	if value == "" {
		return "-"
	}

	return value
}
