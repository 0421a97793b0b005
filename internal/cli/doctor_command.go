package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"media-relay/internal/ffmpeg"
)

type doctorCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type doctorResult struct {
	OK     bool          `json:"ok"`
	Checks []doctorCheck `json:"checks"`
}

func runDoctor(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
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

	res := doctorResult{OK: true}
	add := func(name string, ok bool, message string) {
		res.Checks = append(res.Checks, doctorCheck{Name: name, OK: ok, Message: message})
		if !ok {
			res.OK = false
		}
	}

	if path, ok := ffmpeg.Available(); ok {
		add("ffmpeg", true, path)
	} else {
		add("ffmpeg", false, "ffmpeg not found on PATH")
	}

	if err := cfg.ValidateSource(); err != nil {
		add("source", false, err.Error())
	} else {
		add("source", true, "bucket "+cfg.SourceBucket)
	}

	switch {
	case !cfg.DriveEnabled:
		add("destination", true, "disabled (DRIVE_ROOT_FOLDER_ID not set)")
	case cfg.DriveCredentials == "":
		add("destination", false, "GOOGLE_APPLICATION_CREDENTIALS not set")
	default:
		if _, err := os.Stat(cfg.DriveCredentials); err != nil {
			add("destination", false, "credentials file: "+err.Error())
		} else {
			add("destination", true, "root folder "+cfg.DriveRootFolderID)
		}
	}

	if err := checkWritableDir(cfg.WorkDir); err != nil {
		add("workdir", false, err.Error())
	} else {
		add("workdir", true, cfg.WorkDir)
	}

	if cfg.Shard.Total < 1 || cfg.Shard.Index < 0 || cfg.Shard.Index >= cfg.Shard.Total {
		add("shard", false, fmt.Sprintf("index %d of %d is out of range", cfg.Shard.Index, cfg.Shard.Total))
	} else {
		add("shard", true, fmt.Sprintf("instance %d of %d", cfg.Shard.Index, cfg.Shard.Total))
	}

	if *jsonOut {
		if err := printJSON(res); err != nil {
			return err
		}
	} else {
		for _, c := range res.Checks {
			status := "ok"
			if !c.OK {
				status = "fail"
			}
			fmt.Printf("%s: %s (%s)\n", c.Name, status, c.Message)
		}
	}
	if !res.OK {
		return errors.New("doctor checks failed")
	}
	if !*jsonOut {
		fmt.Println("doctor: all checks passed")
	}
	return nil
}

// checkWritableDir proves writability by creating and removing a probe
// file, since permission bits alone lie on some mounts.
func checkWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return err
	}
	return os.Remove(probe)
}
