package main

import (
	"flag"
	"fmt"
	"log"
	"os"
)

func runReconcile() {
	fs := flag.NewFlagSet("reconcile", flag.ExitOnError)
	fs.Parse(os.Args[1:])

	cfg := loadConfig()
	st := openDB(cfg)
	defer st.Close()

	deleted, err := st.ReconcileChunks()
	if err != nil {
		log.Fatalf("lettera: reconciliation aborted: %v", err)
	}
	if deleted == 0 {
		fmt.Println("No duplicate chunk rows found.")
		return
	}
	fmt.Printf("Deleted %d duplicate chunk rows.\n", deleted)
}
