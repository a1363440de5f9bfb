package storage

const initSchemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    uuid       TEXT NOT NULL UNIQUE,
    started_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    band       TEXT NOT NULL,
    device_id  TEXT NOT NULL,
    config     TEXT
);

CREATE TABLE IF NOT EXISTS signals (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id        INTEGER NOT NULL REFERENCES runs (id),
    capture_us    INTEGER NOT NULL,
    band          TEXT NOT NULL,
    frequency_mhz REAL NOT NULL,
    rssi          INTEGER,
    data          BLOB,
    data_len      INTEGER NOT NULL,
    pulses        TEXT,
    protocol      TEXT,
    device_type   TEXT,
    valid         INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_signals_run ON signals (run_id);

CREATE TABLE IF NOT EXISTS audit_events (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id     INTEGER NOT NULL REFERENCES runs (id),
    seq        INTEGER NOT NULL,
    ts_ms      INTEGER NOT NULL,
    ts_us      INTEGER NOT NULL,
    event_type TEXT NOT NULL,
    state      TEXT NOT NULL,
    prev_state TEXT NOT NULL,
    event      TEXT NOT NULL,
    reason     TEXT,
    data       TEXT
);

CREATE INDEX IF NOT EXISTS idx_audit_events_run ON audit_events (run_id, seq);
`

const insertRunSQL = `
INSERT INTO runs (uuid,
                  started_at,
                  band,
                  device_id,
                  config)
VALUES (?, CURRENT_TIMESTAMP, ?, ?, ?)`

const selectRunSQL = `
SELECT
    id,
    uuid,
    started_at,
    band,
    device_id,
    config
FROM runs
WHERE
    id = ?`

const selectRunsSQL = `
SELECT
    id,
    uuid,
    started_at,
    band,
    device_id,
    config
FROM runs`

const insertSignalSQL = `
INSERT INTO signals (run_id,
                     capture_us,
                     band,
                     frequency_mhz,
                     rssi,
                     data,
                     data_len,
                     pulses,
                     protocol,
                     device_type,
                     valid)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectSignalsSQL = `
SELECT
    id,
    run_id,
    capture_us,
    band,
    frequency_mhz,
    rssi,
    data,
    data_len,
    pulses,
    protocol,
    device_type,
    valid
FROM signals
WHERE
    run_id = ?
ORDER BY capture_us`

const insertAuditEventSQL = `
INSERT INTO audit_events (run_id,
                          seq,
                          ts_ms,
                          ts_us,
                          event_type,
                          state,
                          prev_state,
                          event,
                          reason,
                          data)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectAuditEventsSQL = `
SELECT
    seq,
    ts_ms,
    ts_us,
    event_type,
    state,
    prev_state,
    event,
    reason,
    data
FROM audit_events
WHERE
    run_id = ?
ORDER BY seq`
