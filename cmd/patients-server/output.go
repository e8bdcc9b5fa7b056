package main

import (
	"fmt"
	"io"

	"github.com/ehr/patients/internal/platform/blobstore"
	"github.com/ehr/patients/internal/platform/db"
)

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func printBackups(w io.Writer, infos []blobstore.Info) {
	if len(infos) == 0 {
		fmt.Fprintln(w, "No backups found.")
		return
	}
	fmt.Fprintf(w, "%-50s %10s %s\n", "KEY", "BYTES", "CREATED AT")
	for _, info := range infos {
		fmt.Fprintf(w, "%-50s %10d %s\n", info.Key, info.Size, info.CreatedAt.UTC().Format("2006-01-02 15:04:05"))
	}
}
