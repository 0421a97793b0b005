package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"media-relay/internal/dedupe"
	"media-relay/internal/drive"
	"media-relay/internal/model"
)

func runDedupe(args []string) error {
	fs := flag.NewFlagSet("dedupe", flag.ContinueOnError)
	root := fs.String("root", "", "destination root folder id (overrides DRIVE_ROOT_FOLDER_ID)")
	strategy := fs.String("strategy", "", "keep_first_delete|keep_first_trash|rename_parent_suffix|list_only (interactive when omitted)")
	refresh := fs.Bool("refresh", true, "re-verify records still exist before mutating")
	yes := fs.Bool("yes", false, "skip the destructive-batch confirmation")
	batchSize := fs.Int("batch-size", 0, "mutations per batch (0 = default)")
	envFile := fs.String("env", "", "env file path (default .env if present)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*envFile)
	if err != nil {
		return err
	}
	rootID := *root
	if rootID == "" {
		rootID = cfg.DriveRootFolderID
	}
	if rootID == "" {
		return errors.New("destination root required: set --root or DRIVE_ROOT_FOLDER_ID")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Unlike transfer, dedupe is pointless without the destination store,
	// so auth failures are fatal here.
	client, err := drive.New(ctx, cfg.DriveCredentials)
	if err != nil {
		return err
	}

	fmt.Printf("scanning destination tree under %s...\n", rootID)
	scanner := &dedupe.Scanner{
		Store: &treeAdapter{client},
		Logf:  func(format string, a ...any) { fmt.Printf(format+"\n", a...) },
	}
	groups, complete := scanner.Scan(ctx, rootID)
	if !complete {
		fmt.Println("warning: parts of the tree could not be listed; results are partial")
	}
	if groups == nil {
		fmt.Println("no duplicate names found")
		return nil
	}

	if *jsonOut {
		if err := printJSON(groups); err != nil {
			return err
		}
	} else {
		printGroups(groups)
	}

	chosen, err := chooseStrategy(*strategy)
	if err != nil {
		return err
	}
	if chosen == model.StrategyListOnly {
		return nil
	}

	resolver := &dedupe.Resolver{
		Store:     client,
		Approve:   approver(*yes, chosen),
		BatchSize: *batchSize,
		Logf:      func(format string, a ...any) { fmt.Printf(format+"\n", a...) },
	}
	if *refresh {
		groups = resolver.Refresh(ctx, groups)
		if groups == nil {
			fmt.Println("all duplicate groups resolved themselves since the scan")
			return nil
		}
	}

	result, err := resolver.Resolve(ctx, groups, chosen)
	if errors.Is(err, dedupe.ErrDeclined) {
		fmt.Println("aborted, nothing was changed")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("done: %d ok, %d already gone, %d permission denied, %d other errors\n",
		result.Success, result.NotFound, result.PermissionDenied, result.OtherErrors)
	if result.PermissionDenied+result.OtherErrors > 0 {
		return fmt.Errorf("%d of %d mutations failed", result.PermissionDenied+result.OtherErrors, result.Total())
	}
	return nil
}

func printGroups(groups model.DuplicateGroups) {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("%d duplicate groups, %d files tracked, %d redundant:\n",
		len(groups), groups.Records(), groups.Redundant())
	for _, name := range names {
		recs := groups[name]
		fmt.Printf("  %s (%d occurrences)\n", name, len(recs))
		for i, rec := range recs {
			marker := "keep "
			if i > 0 {
				marker = "dupe "
			}
			fmt.Printf("    %s %s (parent %s)\n", marker, rec.ID, rec.ParentID)
		}
	}
}

// chooseStrategy parses the flag when given, otherwise runs the interactive
// picker. Non-interactive runs must name a strategy explicitly.
func chooseStrategy(raw string) (model.Strategy, error) {
	if raw != "" {
		s, ok := model.ParseStrategy(raw)
		if !ok {
			return "", fmt.Errorf("unknown strategy %q", raw)
		}
		return s, nil
	}
	if !stdinIsTTY() {
		return "", errors.New("--strategy is required in non-interactive mode")
	}
	return pickStrategy()
}

// approver gates destructive batches. --yes bypasses the prompt; otherwise
// the operator has to type the strategy's verb back.
func approver(yes bool, strategy model.Strategy) dedupe.Approver {
	if !strategy.Destructive() {
		return nil
	}
	if yes {
		return func(summary string) bool {
			fmt.Println(summary)
			return true
		}
	}
	if !stdinIsTTY() {
		return func(string) bool {
			fmt.Println("confirmation required (rerun with --yes in non-interactive mode)")
			return false
		}
	}
	verb := "delete"
	if strategy == model.StrategyKeepFirstTrash {
		verb = "trash"
	}
	return func(summary string) bool {
		ok, err := confirmTyped(summary, verb)
		if err != nil {
			fmt.Printf("confirmation failed: %v\n", err)
			return false
		}
		return ok
	}
}
