package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"chrreload/reload"
	"chrreload/titles"
)

func main() {
	os.Exit(run())
}

func run() int {
	titleFlag := flag.String("title", "", "Game to reload in (DS1R, DS3, SDT, ER)")
	chrFlag := flag.String("chr", "", "Character id to reload (e.g. c2010 or 2010)")
	versionFlag := flag.String("version", "", "Game version entry to use (default: \"default\")")
	configFlag := flag.String("config", "", "YAML file with extra or overriding title entries")
	timeoutFlag := flag.Duration("timeout", 0, "Override the remote thread timeout")
	debugFlag := flag.Bool("debug", false, "Hexdump the record and shellcode written to the game")
	listFlag := flag.Bool("list", false, "List supported titles and exit")
	flag.Parse()

	table, err := titles.Default()
	if err != nil {
		fmt.Printf("Error loading title table: %v\n", err)
		return 1
	}
	if *configFlag != "" {
		extra, err := titles.LoadFile(*configFlag)
		if err != nil {
			fmt.Printf("Error loading %s: %v\n", *configFlag, err)
			return 1
		}
		table.Merge(extra)
	}

	if *listFlag {
		for _, t := range table.Titles() {
			fmt.Printf("%-6s %-10s %-12s %v\n", t.ID, t.Version, t.Template, t.ProcessNames)
		}
		return 0
	}

	if *titleFlag == "" || *chrFlag == "" {
		fmt.Println("Error: --title and --chr are required")
		flag.Usage()
		return 1
	}

	if *timeoutFlag > 0 {
		t, err := table.Lookup(*titleFlag, *versionFlag)
		if err == nil {
			t.Timeout = titles.Duration(*timeoutFlag)
		}
	}

	link, err := newLink()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}

	r := reload.New(link, table, reload.WithCodeDump(*debugFlag))
	defer r.Detach()

	res, err := r.Reload(*titleFlag, *versionFlag, *chrFlag)
	if err != nil {
		var re *reload.Error
		if errors.As(err, &re) {
			fmt.Println(re.UserMessage())
			fmt.Printf("(%s error during %s: %v)\n", re.Category, re.Phase, re.Err)
		} else {
			fmt.Printf("Error: %v\n", err)
		}
		return 1
	}

	fmt.Printf("Reloaded %s in %s (%s)\n", res.ID, res.Title, res.Elapsed.Round(time.Millisecond))
	return 0
}
