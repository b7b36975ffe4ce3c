package dataset

import (
	_ "embed"
)

//go:embed schema.sql
var initSchemaSQL string

const (
	insertRunSQL = `
INSERT INTO runs (id,
                  started_at,
                  distance_key,
                  distance_label)
VALUES (?, ?, ?, ?)`

	updateRunSyncSQL = `
UPDATE runs
SET sync_skew_ms  = ?,
    sync_missing  = ?,
    sync_warnings = ?
WHERE id = ?`

	selectRunsSQL = `
SELECT id,
       started_at,
       distance_key,
       distance_label
FROM runs
ORDER BY started_at`

	insertPoseSQL = `
INSERT INTO poses (run_id,
                   started_at,
                   finished_at,
                   angle,
                   north,
                   east,
                   south,
                   west,
                   north_count,
                   east_count,
                   south_count,
                   west_count,
                   bearing)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectPosesSQL = `
SELECT p.id,
       p.started_at,
       p.finished_at,
       p.angle,
       p.north,
       p.east,
       p.south,
       p.west,
       p.north_count,
       p.east_count,
       p.south_count,
       p.west_count,
       p.bearing,
       r.distance_key,
       r.distance_label
FROM poses p
         JOIN runs r ON r.id = p.run_id
WHERE p.run_id = ?
ORDER BY p.angle`

	insertRawLineSQL = `
INSERT INTO raw_lines (pose_id,
                       timestamp,
                       direction,
                       line)
VALUES `

	selectRawLinesSQL = `
SELECT timestamp,
       direction,
       line
FROM raw_lines
WHERE pose_id = ?
ORDER BY id`
)
