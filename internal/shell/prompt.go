package shell

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	prompt "github.com/c-bata/go-prompt"
)

// Interactive reads commands at a go-prompt line editor with completion
// until quit, exit, Ctrl-D, or ctx is done.  Command errors are printed
// and the prompt continues.
func (r *Runner) Interactive(ctx context.Context) error {
	r.out.Info("goftp shell, type help for commands")

	p := prompt.New(
		func(line string) {
			if err := r.Exec(ctx, line); err != nil {
				r.Report(err)
			}
		},
		r.Complete,
		prompt.OptionTitle("goftp"),
		prompt.OptionLivePrefix(r.livePrefix),
		prompt.OptionPrefixTextColor(prompt.Green),
		prompt.OptionPreviewSuggestionTextColor(prompt.Blue),
		prompt.OptionSelectedSuggestionBGColor(prompt.LightGray),
		prompt.OptionSuggestionBGColor(prompt.DarkGray),
		prompt.OptionCompletionWordSeparator(" "),
		prompt.OptionSetExitCheckerOnInput(func(_ string, breakline bool) bool {
			return breakline && (r.done || ctx.Err() != nil)
		}),
	)
	p.Run()
	return r.Close()
}

func (r *Runner) livePrefix() (string, bool) {
	if r.sess == nil || r.sess.Server() == "" {
		return "ftp> ", true
	}
	dir := r.sess.WorkingDirectory()
	if dir == "" {
		dir = "~"
	}
	return "ftp " + r.sess.Server() + ":" + dir + "> ", true
}

// Complete suggests command names for the first word, then remote names
// from the last listing or local files depending on the command.
func (r *Runner) Complete(d prompt.Document) []prompt.Suggest {
	text := d.TextBeforeCursor()
	words := strings.Fields(text)
	word := d.GetWordBeforeCursor()

	if len(words) == 0 || (len(words) == 1 && !strings.HasSuffix(text, " ")) {
		s := make([]prompt.Suggest, 0, len(commandList))
		for _, c := range commandList {
			s = append(s, prompt.Suggest{Text: c.name, Description: c.help})
		}
		return prompt.FilterHasPrefix(s, word, true)
	}

	var names []string
	desc := "remote"
	switch strings.ToLower(words[0]) {
	case "get", "rm", "mv", "cd":
		names = r.remote
	case "put":
		names, desc = localNames("."), "local"
	case "help":
		for _, c := range commandList {
			names = append(names, c.name)
		}
		desc = "command"
	default:
		return nil
	}
	s := make([]prompt.Suggest, 0, len(names))
	for _, n := range names {
		s = append(s, prompt.Suggest{Text: n, Description: desc})
	}
	return prompt.FilterHasPrefix(s, word, true)
}

func localNames(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	return names
}

// eachLine calls fn for every line of in until fn returns false.
func eachLine(in io.Reader, fn func(line string) bool) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if !fn(sc.Text()) {
			return nil
		}
	}
	return sc.Err()
}
