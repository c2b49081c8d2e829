package command

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/posener/complete"
	completeinstall "github.com/posener/complete/cmd/install"
)

// AutocompleteMain answers a shell completion request and reports whether
// there was one. Every flag of every command is offered.
func AutocompleteMain(commands []*Command) bool {
	subCommands := make(complete.Commands)
	helpSubCommands := make(complete.Commands)
	for _, cmd := range commands {
		flags := make(complete.Flags)
		cmd.Flag.VisitAll(func(f *flag.Flag) {
			flags["-"+f.Name] = complete.PredictAnything
		})
		subCommands[cmd.Name()] = complete.Command{Flags: flags}
		helpSubCommands[cmd.Name()] = complete.Command{}
	}
	subCommands["help"] = complete.Command{Sub: helpSubCommands}

	globalFlags := make(complete.Flags)
	flag.VisitAll(func(f *flag.Flag) {
		globalFlags["-"+f.Name] = complete.PredictAnything
	})

	weedCmd := complete.Command{
		Sub:         subCommands,
		Flags:       globalFlags,
		GlobalFlags: complete.Flags{"-h": complete.PredictNothing},
	}
	return complete.New("weed", weedCmd).Complete()
}

func printAutocompleteScript(shell string) bool {
	bin, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "locate executable: %v\n", err)
		return false
	}
	binPath, err := filepath.Abs(bin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolve %s: %v\n", bin, err)
		return false
	}

	switch shell {
	case "bash":
		fmt.Printf("complete -C %q weed\n", binPath)
	case "zsh":
		fmt.Printf("autoload -U +X bashcompinit && bashcompinit\n")
		fmt.Printf("complete -o nospace -C %q weed\n", binPath)
	default:
		fmt.Fprintf(os.Stderr, "unsupported shell %q, use bash or zsh\n", shell)
		return false
	}
	return true
}

func changeAutoCompletion(install bool) bool {
	if runtime.GOOS == "windows" {
		fmt.Println("Windows is not supported")
		return false
	}
	action, change := "install", completeinstall.Install
	if !install {
		action, change = "uninstall", completeinstall.Uninstall
	}
	if err := change("weed"); err != nil {
		fmt.Printf("%s failed: %v\n", action, err)
		return false
	}
	fmt.Printf("autocompletion %s done, please restart your shell.\n", action)
	return true
}

func init() {
	cmdAutocomplete.Run = runAutocomplete // break init cycle
}

var cmdAutocomplete = &Command{
	UsageLine: "autocomplete [install|uninstall|bash|zsh]",
	Short:     "shell completion for weed commands and flags",
	Long: `Print or install shell completion for weed.

    weed autocomplete bash       # print the bash completion line
    weed autocomplete zsh        # print the zsh completion lines
    weed autocomplete install    # add completion to the shell rc files
    weed autocomplete uninstall  # remove it again

  Without an argument the completion is installed. Windows is not supported.
  `,
}

func runAutocomplete(cmd *Command, args []string) bool {
	if len(args) > 1 {
		return false
	}
	if len(args) == 0 {
		return changeAutoCompletion(true)
	}
	switch args[0] {
	case "install":
		return changeAutoCompletion(true)
	case "uninstall":
		return changeAutoCompletion(false)
	}
	return printAutocompleteScript(args[0])
}
