package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"cafenote/pkg/errors"
	"cafenote/pkg/models"
)

var ledgerSource string

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect members that were already contacted",
	Long: `The ledger holds every member a note was delivered to, plus members
excluded by hand. Crawls never collect a member that is in the ledger.`,
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ledger entries, newest first",
	Args:  cobra.NoArgs,
	RunE:  runLedgerList,
}

var ledgerFindCmd = &cobra.Command{
	Use:   "find <text>",
	Short: "Find entries whose member key or nickname contains text",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLedgerFind,
}

var ledgerRemoveCmd = &cobra.Command{
	Use:   "remove <member key>",
	Short: "Forget a member so later crawls can collect them again",
	Args:  cobra.ExactArgs(1),
	RunE:  runLedgerRemove,
}

var membersCmd = &cobra.Command{
	Use:   "members",
	Short: "Review the members collected by the latest crawl",
}

var membersListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the latest crawl's members",
	Args:  cobra.NoArgs,
	RunE:  runMembersList,
}

var membersExcludeCmd = &cobra.Command{
	Use:   "exclude <member key>...",
	Short: "Add members to the ledger without sending them anything",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runMembersExclude,
}

func init() {
	rootCmd.AddCommand(ledgerCmd, membersCmd)
	ledgerCmd.AddCommand(ledgerListCmd, ledgerFindCmd, ledgerRemoveCmd)
	membersCmd.AddCommand(membersListCmd, membersExcludeCmd)
	ledgerFindCmd.Flags().StringVar(&ledgerSource, "source", "", "only entries from this source (id or cafe/menu ref)")
}

func printLedger(entries []models.LedgerEntry) {
	if len(entries) == 0 {
		console.Println("No ledger entries.")
		return
	}
	for _, e := range entries {
		console.Printf("%s  %-24s %-20s %s\n", e.CreatedAt.Format("2006-01-02 15:04"), e.MemberKey, e.Nickname, e.SourceRef)
	}
	console.Printf("%d entries\n", len(entries))
}

func runLedgerList(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := db.LedgerEntries(context.Background())
	if err != nil {
		return err
	}
	printLedger(entries)
	return nil
}

func runLedgerFind(cmd *cobra.Command, args []string) error {
	var text string
	if len(args) == 1 {
		text = strings.ToLower(args[0])
	}
	if text == "" && ledgerSource == "" {
		return fmt.Errorf("give search text or --source")
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	ref := ledgerSource
	if id, err := strconv.ParseInt(ledgerSource, 10, 64); err == nil {
		src, err := db.Source(context.Background(), id)
		if err != nil {
			return fmt.Errorf("source #%d: %w", id, err)
		}
		ref = src.Ref()
	}

	entries, err := db.FindLedger(context.Background(), func(e models.LedgerEntry) bool {
		if ref != "" && e.SourceRef != ref {
			return false
		}
		return text == "" ||
			strings.Contains(strings.ToLower(e.MemberKey), text) ||
			strings.Contains(strings.ToLower(e.Nickname), text)
	})
	if err != nil {
		return err
	}
	printLedger(entries)
	return nil
}

func runLedgerRemove(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.DeleteLedgerEntry(context.Background(), args[0]); err != nil {
		return fmt.Errorf("member %q: %w", args[0], err)
	}
	console.Success(fmt.Sprintf("Removed %s from the ledger", args[0]))
	return nil
}

func runMembersList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, cleanup, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer cleanup()

	snap, err := a.RecipientsFromLatest(ctx, nil, nil)
	if err != nil {
		return err
	}
	console.Info("Crawl", fmt.Sprintf("%s (%s)", snap.RunID, snap.Period))
	if !snap.Success {
		console.Warning(fmt.Sprintf("This crawl did not finish: %s", snap.Error))
	}
	for i, m := range snap.Members {
		console.Printf("%3d. %-24s %-20s %s\n", i+1, m.MemberKey, m.Nickname, m.SourceName)
	}
	return nil
}

func runMembersExclude(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, cleanup, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer cleanup()

	known := make(map[string]models.AuthorRecord)
	if snap, err := a.RecipientsFromLatest(ctx, nil, nil); err == nil {
		for _, m := range snap.Members {
			known[m.MemberKey] = m
		}
	}

	for _, key := range args {
		m, ok := known[key]
		if !ok {
			m = models.AuthorRecord{MemberKey: key}
		}
		_, err := a.DB.CreateLedgerEntry(ctx, models.LedgerEntry{
			MemberKey: m.MemberKey,
			Nickname:  m.Nickname,
			SourceRef: m.SourceRef,
		})
		switch {
		case errors.IsType(err, errors.ErrorTypeDuplicate):
			console.Warning(fmt.Sprintf("%s is already known", key))
		case err != nil:
			return err
		default:
			console.Success(fmt.Sprintf("Excluded %s", key))
		}
	}
	return nil
}
