package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"chrreload/hexdump"
	"chrreload/process"
	"chrreload/process_blob"
	"chrreload/resolver"
	"chrreload/search"
	"chrreload/titles"
)

func main() {
	nameFlag := flag.String("name", "", "Image name of a running process to scan")
	imageFlag := flag.String("image", "", "Game .exe or raw module dump to scan instead of a live process")
	baseFlag := flag.String("base", "0x140000000", "Load address of a raw -image dump (hex)")
	aobFlag := flag.String("aob", "", "Array of bytes to scan for (e.g., '48 8B 05 ?? ?? ?? ??')")
	titleFlag := flag.String("title", "", "Resolve every pointer of this title instead of -aob")
	limitFlag := flag.Int("limit", 16, "Maximum number of matches to print (0 for all)")
	flag.Parse()

	if *aobFlag == "" && *titleFlag == "" {
		fmt.Println("Error: --aob or --title is required")
		flag.Usage()
		os.Exit(1)
	}

	target, err := open(*nameFlag, *imageFlag, *baseFlag)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer target.Detach()

	if *titleFlag != "" {
		if err := resolveTitle(target, *titleFlag); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	aob, err := process.ParseAOB(*aobFlag)
	if err != nil {
		fmt.Printf("Error parsing AOB: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Scanning %s from %s for pattern: %s\n", target.GetName(), target.BaseAddress().ToString(), aob.String())

	matches, err := search.FindAll(target, aob, *limitFlag, search.WithStartAddress(target.BaseAddress()))
	if err != nil {
		fmt.Printf("Error scanning memory: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Found %d matches:\n", len(matches))

	for _, match := range matches {
		fmt.Printf("Match at %s (module+%#x):\n", match.ToString(), uint64(match-target.BaseAddress()))
		printContext(target, match, aob.Len())
	}
}

func open(name, image, base string) (process.Target, error) {
	if strings.HasSuffix(strings.ToLower(image), ".exe") {
		b, err := process_blob.LoadPE(image, "image")
		if err != nil {
			return nil, err
		}
		return b, b.Attach("image")
	}
	if image != "" {
		addr, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(base), "0x"), 16, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --base %q: %v", base, err)
		}
		b, err := process_blob.LoadImage(image, "image", process.ProcessMemoryAddress(addr))
		if err != nil {
			return nil, err
		}
		return b, b.Attach("image")
	}
	if name == "" {
		return nil, fmt.Errorf("--name or --image is required")
	}
	link, err := newLink()
	if err != nil {
		return nil, err
	}
	return link, link.Attach(name)
}

// printContext dumps 16 bytes before and after the match with the match highlighted.
func printContext(target process.Target, match process.ProcessMemoryAddress, n int) {
	start := match.Add(-16)
	data, err := target.ReadMemory(start, process.ProcessMemorySize(n+32))
	if err != nil {
		start = match
		data, err = target.ReadMemory(start, process.ProcessMemorySize(n))
		if err != nil {
			return
		}
	}
	fmt.Println(hexdump.DumpWithHighlight(data, uint64(start), hexdump.Span{Offset: int(match - start), Len: n}))
}

func resolveTitle(target process.Target, id string) error {
	table, err := titles.Default()
	if err != nil {
		return err
	}
	title, err := table.Lookup(id, "")
	if err != nil {
		return err
	}
	chains, err := title.Chains()
	if err != nil {
		return err
	}
	res, err := resolver.New(target, chains)
	if err != nil {
		return err
	}

	for _, c := range chains {
		p, err := res.Resolve(c.Name)
		if err != nil {
			fmt.Printf("%-20s error: %v\n", c.Name, err)
			continue
		}
		fmt.Printf("%-20s %s\n", p.Name, p.Address.ToString())
	}
	return nil
}
