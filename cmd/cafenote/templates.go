package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var templateFile string

var templatesCmd = &cobra.Command{
	Use:     "templates",
	Aliases: []string{"template"},
	Short:   "Manage saved note bodies",
}

var templatesAddCmd = &cobra.Command{
	Use:   "add <name> [body]",
	Short: "Save a note body under a name",
	Example: `  cafenote templates add hello "안녕하세요! 카페 글 잘 봤습니다."
  cafenote templates add long --file note.txt`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runTemplatesAdd,
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved templates",
	Args:  cobra.NoArgs,
	RunE:  runTemplatesList,
}

var templatesRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Delete a template",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplatesRemove,
}

func init() {
	rootCmd.AddCommand(templatesCmd)
	templatesCmd.AddCommand(templatesAddCmd, templatesListCmd, templatesRemoveCmd)
	templatesAddCmd.Flags().StringVarP(&templateFile, "file", "f", "", "read the body from a file")
}

func runTemplatesAdd(cmd *cobra.Command, args []string) error {
	var body string
	switch {
	case templateFile != "":
		data, err := os.ReadFile(templateFile)
		if err != nil {
			return fmt.Errorf("failed to read template file: %w", err)
		}
		body = string(data)
	case len(args) == 2:
		body = args[1]
	default:
		return fmt.Errorf("give the body as an argument or with --file")
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	tpl, err := db.AddTemplate(context.Background(), args[0], body)
	if err != nil {
		return err
	}
	console.Success(fmt.Sprintf("Saved template %q (%d characters)", tpl.Name, len([]rune(tpl.Body))))
	return nil
}

func runTemplatesList(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	templates, err := db.Templates(context.Background())
	if err != nil {
		return err
	}
	if len(templates) == 0 {
		console.Println("No templates saved.")
		return nil
	}
	for _, t := range templates {
		console.Printf("%-16s %s\n", t.Name, preview(t.Body, 60))
	}
	return nil
}

func runTemplatesRemove(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.RemoveTemplate(context.Background(), args[0]); err != nil {
		return fmt.Errorf("template %q: %w", args[0], err)
	}
	console.Success(fmt.Sprintf("Removed template %q", args[0]))
	return nil
}
