package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"cafenote/pkg/models"
	"cafenote/pkg/naver"
	"cafenote/pkg/storage"
)

var (
	sourceCafe     string
	sourceMenu     string
	sourceName     string
	sourceDisabled bool
)

var sourcesCmd = &cobra.Command{
	Use:     "sources",
	Aliases: []string{"source"},
	Short:   "Manage the cafe boards to crawl",
}

var sourcesAddCmd = &cobra.Command{
	Use:   "add [menu URL]",
	Short: "Add a board by URL or by cafe and menu id",
	Example: `  cafenote sources add https://cafe.naver.com/f-e/cafes/10050146/menus/334 --name "free board"
  cafenote sources add --cafe 10050146 --menu 334`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSourcesAdd,
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured boards",
	Args:  cobra.NoArgs,
	RunE:  runSourcesList,
}

var sourcesEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Include a board in crawls",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setSourceActive(args[0], true) },
}

var sourcesDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Keep a board but skip it in crawls",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setSourceActive(args[0], false) },
}

var sourcesRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Delete a board",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourcesRemove,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
	sourcesCmd.AddCommand(sourcesAddCmd, sourcesListCmd, sourcesEnableCmd, sourcesDisableCmd, sourcesRemoveCmd)

	sourcesAddCmd.Flags().StringVar(&sourceCafe, "cafe", "", "numeric cafe id")
	sourcesAddCmd.Flags().StringVar(&sourceMenu, "menu", "", "numeric menu (board) id")
	sourcesAddCmd.Flags().StringVar(&sourceName, "name", "", "label shown in progress output")
	sourcesAddCmd.Flags().BoolVar(&sourceDisabled, "disabled", false, "add the board without crawling it yet")
	sourcesAddCmd.MarkFlagsRequiredTogether("cafe", "menu")
}

func openDB() (*storage.DB, error) {
	db, err := storage.Open(cfg.Storage.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.Storage.Database, err)
	}
	return db, nil
}

func runSourcesAdd(cmd *cobra.Command, args []string) error {
	src := models.Source{
		CafeID:     sourceCafe,
		CategoryID: sourceMenu,
		Name:       sourceName,
		Active:     !sourceDisabled,
	}
	switch {
	case len(args) == 1:
		cafeID, categoryID, err := naver.ParseCafeURL(args[0])
		if err != nil {
			return err
		}
		src.CafeID, src.CategoryID, src.URL = cafeID, categoryID, args[0]
	case sourceCafe == "":
		return fmt.Errorf("give a menu URL or --cafe and --menu")
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	added, err := db.AddSource(context.Background(), src)
	if err != nil {
		return err
	}
	console.Success(fmt.Sprintf("Added source #%d %s", added.ID, sourceLabel(added.Name, added.Ref())))
	return nil
}

func runSourcesList(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	sources, err := db.ListSources(context.Background())
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		console.Println("No sources. Add one with 'cafenote sources add <menu URL>'.")
		return nil
	}
	for _, s := range sources {
		state := "active"
		if !s.Active {
			state = "disabled"
		}
		console.Printf("#%-4d %-20s %-9s %s\n", s.ID, s.Ref(), state, s.Name)
	}
	return nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid source id %q", raw)
	}
	return id, nil
}

func setSourceActive(raw string, active bool) error {
	id, err := parseID(raw)
	if err != nil {
		return err
	}
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.SetSourceActive(context.Background(), id, active); err != nil {
		return fmt.Errorf("source #%d: %w", id, err)
	}
	verb := "Disabled"
	if active {
		verb = "Enabled"
	}
	console.Success(fmt.Sprintf("%s source #%d", verb, id))
	return nil
}

func runSourcesRemove(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.RemoveSource(context.Background(), id); err != nil {
		return fmt.Errorf("source #%d: %w", id, err)
	}
	console.Success(fmt.Sprintf("Removed source #%d", id))
	return nil
}
