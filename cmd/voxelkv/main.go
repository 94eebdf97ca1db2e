// Command voxelkv is an interactive console for exercising a voxelkv
// database: open or create a file, then save/load/erase keys by hand.
// It carries no colour output and no line-editing conveniences beyond
// what peterh/liner gives for free — a deliberately plain inspection
// tool, not a product.
package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	kvdb "github.com/flashkv/voxelkv"
)

func main() {
	var (
		catalogueFlag = flag.String("catalogue", "", "path to a catalogue YAML file listing named databases")
		dbFlag        = flag.String("db", "", "name of the database to open, from --catalogue")
		pathFlag      = flag.String("path", "", "path to a database file to open directly, ignoring --catalogue")
		createFlag    = flag.Bool("create", false, "create the database file if it does not already exist")
	)
	flag.Parse()

	path, opts, err := resolveTarget(*catalogueFlag, *dbFlag, *pathFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "voxelkv:", err)
		os.Exit(1)
	}

	db, err := openOrCreate(path, *createFlag, opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "voxelkv:", err)
		os.Exit(1)
	}
	defer db.Close()

	runREPL(db, path)
}

func resolveTarget(cataloguePath, dbName, directPath string) (string, []kvdb.Option, error) {
	if directPath != "" {
		return directPath, nil, nil
	}
	if cataloguePath == "" || dbName == "" {
		return "", nil, fmt.Errorf("either --path, or both --catalogue and --db, must be given")
	}
	cfg, err := loadCatalogueConfig(cataloguePath)
	if err != nil {
		return "", nil, err
	}
	entry, ok := cfg.find(dbName)
	if !ok {
		return "", nil, fmt.Errorf("no database named %q in %q", dbName, cataloguePath)
	}
	var opts []kvdb.Option
	if entry.KeySize > 0 {
		opts = append(opts, kvdb.WithKeySize(entry.KeySize))
	}
	if entry.ReservedTableSize > 0 {
		opts = append(opts, kvdb.WithReservedTableSize(entry.ReservedTableSize))
	}
	if entry.ReservedValueSize > 0 {
		opts = append(opts, kvdb.WithReservedValueSize(entry.ReservedValueSize))
	}
	return entry.Path, opts, nil
}

func openOrCreate(path string, create bool, opts []kvdb.Option) (*kvdb.DB, error) {
	db, err := kvdb.Open(path, opts...)
	if err == nil {
		return db, nil
	}
	if !create || !errors.Is(err, kvdb.ErrNotFound) {
		return nil, err
	}
	if createErr := kvdb.Create(path, nil, opts...); createErr != nil {
		return nil, createErr
	}
	return kvdb.Open(path, opts...)
}

const helpText = `commands:
  save <hexkey> <value> [flags]   insert or overwrite a key
  load <hexkey>                   print the value under a key
  erase <hexkey>                  delete a key
  exist <hexkey>                  report whether a key is present
  flags <hexkey>                  print a key's flags
  size                            print live/reserved/deleted counts
  info                            list every slot, grouped by state
  help                            show this text
  quit                            close the database and exit
keys are given as hex, e.g. 000000010000000200000003 for a 12-byte key.`

func runREPL(db *kvdb.DB, path string) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	fmt.Printf("voxelkv console — %s (%d live, %d reserved, %d deleted)\n",
		path, db.Size(), db.Reserved(), db.Deleted())
	fmt.Println(`type "help" for commands, "quit" to exit`)

	for {
		input, err := line.Prompt("voxelkv> ")
		if err != nil {
			return
		}
		line.AppendHistory(input)

		fields := strings.Fields(input)
		if len(fields) == 0 {
			continue
		}

		if err := dispatch(db, fields); err != nil {
			if err == errQuit {
				return
			}
			fmt.Println("error:", err)
		}
	}
}

var errQuit = fmt.Errorf("quit")

func dispatch(db *kvdb.DB, fields []string) error {
	switch fields[0] {
	case "help":
		fmt.Println(helpText)
	case "quit", "exit":
		return errQuit
	case "save":
		return cmdSave(db, fields[1:])
	case "load":
		return cmdLoad(db, fields[1:])
	case "erase", "delete":
		return cmdErase(db, fields[1:])
	case "exist":
		return cmdExist(db, fields[1:])
	case "flags":
		return cmdFlags(db, fields[1:])
	case "size":
		fmt.Printf("live=%d reserved=%d deleted=%d\n", db.Size(), db.Reserved(), db.Deleted())
	case "info":
		cmdInfo(db)
	default:
		return fmt.Errorf("unknown command %q, try \"help\"", fields[0])
	}
	return nil
}

func parseHexKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex key %q: %w", s, err)
	}
	return key, nil
}

func cmdSave(db *kvdb.DB, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: save <hexkey> <value> [flags]")
	}
	key, err := parseHexKey(args[0])
	if err != nil {
		return err
	}
	var flags uint16
	if len(args) >= 3 {
		n, err := strconv.ParseUint(args[2], 10, 16)
		if err != nil {
			return fmt.Errorf("invalid flags %q: %w", args[2], err)
		}
		flags = uint16(n)
	}
	return db.Save(key, []byte(args[1]), flags)
}

func cmdLoad(db *kvdb.DB, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: load <hexkey>")
	}
	key, err := parseHexKey(args[0])
	if err != nil {
		return err
	}
	value, ok := db.Load(key)
	if !ok {
		fmt.Println("(not found)")
		return nil
	}
	fmt.Printf("%s\n", value)
	return nil
}

func cmdErase(db *kvdb.DB, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: erase <hexkey>")
	}
	key, err := parseHexKey(args[0])
	if err != nil {
		return err
	}
	return db.Erase(key)
}

func cmdExist(db *kvdb.DB, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: exist <hexkey>")
	}
	key, err := parseHexKey(args[0])
	if err != nil {
		return err
	}
	fmt.Println(db.IsExist(key))
	return nil
}

func cmdFlags(db *kvdb.DB, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: flags <hexkey>")
	}
	key, err := parseHexKey(args[0])
	if err != nil {
		return err
	}
	fmt.Println(db.KFlags(key))
	return nil
}

func cmdInfo(db *kvdb.DB) {
	active, reserved, deleted := db.Info()
	fmt.Printf("-- live (%d) --\n", len(active))
	for _, s := range active {
		fmt.Printf("  key=%s entryPos=%d dataPos=%d len=%d/%d flags=%d\n",
			hex.EncodeToString(s.Key), s.EntryPos, s.DataPos, s.DataLength, s.InitialDataLength, s.Flags)
	}
	fmt.Printf("-- reserved (%d) --\n", len(reserved))
	for _, s := range reserved {
		fmt.Printf("  entryPos=%d\n", s.EntryPos)
	}
	fmt.Printf("-- deleted (%d) --\n", len(deleted))
	for _, s := range deleted {
		fmt.Printf("  entryPos=%d capacity=%d\n", s.EntryPos, s.InitialDataLength)
	}
}
