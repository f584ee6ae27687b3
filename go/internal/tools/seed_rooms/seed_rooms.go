package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/studyroom/go/internal/dbconfig"
	"github.com/mcdev12/studyroom/go/internal/rooms"
)

func main() {
	path := "go/internal/assets/rooms.yaml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1) Load the YAML fixtures
	list, err := rooms.LoadFixtures(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixtures: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(context.Background(), cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Insert and count; existing rooms are left untouched
	var (
		total    = len(list)
		inserted int
		skipped  int
		errs     int
	)

	for _, r := range list {
		settings, err := json.Marshal(r.Settings)
		if err != nil {
			fmt.Fprintf(os.Stderr, "encode settings for %s: %v\n", r.ID, err)
			errs++
			continue
		}
		announcement, err := json.Marshal(r.Announcement)
		if err != nil {
			fmt.Fprintf(os.Stderr, "encode announcement for %s: %v\n", r.ID, err)
			errs++
			continue
		}

		cmdTag, err := pool.Exec(context.Background(), `
            INSERT INTO study_rooms (
              id, host_user_id, slug, status, access_code,
              settings, announcement, created_at, updated_at
            ) VALUES (
              $1,$2,$3,$4,$5,$6,$7,$8,$9
            )
            ON CONFLICT (id) DO NOTHING
        `,
			r.ID, r.HostUserID, r.Slug, string(r.Status), r.AccessCode,
			settings, announcement, r.CreatedAt, r.UpdatedAt,
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inserting room %s: %v\n", r.ID, err)
			errs++
			continue
		}
		if cmdTag.RowsAffected() == 1 {
			inserted++
		} else {
			skipped++
		}
	}

	// 4) Print summary
	fmt.Printf(
		"Rooms seed complete: %d total, %d inserted, %d skipped, %d errors\n",
		total, inserted, skipped, errs,
	)
}
