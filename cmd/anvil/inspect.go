package main

import (
	"bytes"
	"debug/elf"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"anvil/internal/artifact"
)

var inspectSections bool

func init() {
	inspectCmd.Flags().BoolVar(&inspectSections, "sections", false, "list the object's ELF sections")
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <artifact" + artifact.Ext + ">",
	Short: "Show the contents of an artifact file",
	Args:  cobra.ExactArgs(1),
	RunE:  inspectExecution,
}

func inspectExecution(cmd *cobra.Command, args []string) error {
	if err := applyColorMode(cmd); err != nil {
		return err
	}
	art, err := artifact.Load(args[0])
	if err != nil {
		return err
	}

	header := color.New(color.Bold)
	fmt.Printf("%s %s\n", header.Sprint("artifact:"), art.Name)
	fmt.Printf("%s %s\n", header.Sprint("triple:"), art.Triple)
	fmt.Printf("%s %d bytes\n", header.Sprint("object:"), len(art.Object))
	fmt.Printf("%s %s\n", header.Sprint("sha256:"), hex.EncodeToString(art.ObjectHash[:]))
	printSymbolList(header, "exports", art.Exports)
	printSymbolList(header, "locals", art.Locals)
	printSymbolList(header, "imports", art.Imports)

	if !inspectSections {
		return nil
	}
	f, err := elf.NewFile(bytes.NewReader(art.Object))
	if err != nil {
		return fmt.Errorf("object payload does not parse as ELF: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	fmt.Println(header.Sprint("sections:"))
	for _, sec := range f.Sections {
		if sec.Name == "" {
			continue
		}
		fmt.Printf("  %-12s %-10s %6d bytes  align %d\n",
			sec.Name, strings.TrimPrefix(sec.Type.String(), "SHT_"), sec.Size, sec.Addralign)
	}
	return nil
}

func printSymbolList(header *color.Color, label string, names []string) {
	if len(names) == 0 {
		fmt.Printf("%s (none)\n", header.Sprintf("%s:", label))
		return
	}
	fmt.Printf("%s %s\n", header.Sprintf("%s:", label), strings.Join(names, ", "))
}
