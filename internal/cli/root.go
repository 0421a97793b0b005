package cli

import "fmt"

func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	switch args[0] {
	case "transfer":
		return runTransfer(args[1:])
	case "dedupe":
		return runDedupe(args[1:])
	case "doctor":
		return runDoctor(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage() {
	fmt.Println("media-relay: bucket-to-drive media transcode pipeline")
	fmt.Println()
	fmt.Println("Quick Start:")
	fmt.Println("  media-relay doctor")
	fmt.Println("  media-relay transfer --list gopro/a.mov,phone/b.mp4")
	fmt.Println("  media-relay dedupe --root <folder-id>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  transfer  fetch, transcode, and publish the work list")
	fmt.Println("  doctor    run dependency and configuration preflight checks")
	fmt.Println("  dedupe    scan the destination tree and resolve name duplicates")
	fmt.Println()
	fmt.Println("Notes:")
	fmt.Println("  - Configuration comes from the environment or an --env file")
	fmt.Println("  - Run several instances with --shard-index/--shard-total to")
	fmt.Println("    split one work list without shared state")
}
