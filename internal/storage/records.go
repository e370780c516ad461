// ABOUTME: Daily record graph persistence for SQLite storage.
// ABOUTME: Eager nested loads plus a cascading batch save in one transaction.
package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/teamfit/wearsync/internal/models"
)

// LoadDailyRecords loads the records for the given athlete whose date
// is in the given set, with every nested relation populated.
func (d *DB) LoadDailyRecords(athleteID uuid.UUID, dates []time.Time) ([]*models.DailyRecord, error) {
	if len(dates) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(dates))
	args := []interface{}{athleteID.String()}
	for i, t := range dates {
		placeholders[i] = "?"
		args = append(args, models.Day(t).Format(models.DateKey))
	}
	query := fmt.Sprintf(`
		SELECT id, athlete_id, date, created_at, updated_at
		FROM daily_records
		WHERE athlete_id = ? AND date IN (%s)
		ORDER BY date
	`, strings.Join(placeholders, ", "))
	return d.queryRecords(query, args...)
}

// LoadDailyRecordRange loads the records for the given athlete with
// date in [from, to], with every nested relation populated.
func (d *DB) LoadDailyRecordRange(athleteID uuid.UUID, from, to time.Time) ([]*models.DailyRecord, error) {
	query := `
		SELECT id, athlete_id, date, created_at, updated_at
		FROM daily_records
		WHERE athlete_id = ? AND date >= ? AND date <= ?
		ORDER BY date
	`
	return d.queryRecords(query,
		athleteID.String(),
		models.Day(from).Format(models.DateKey),
		models.Day(to).Format(models.DateKey),
	)
}

func (d *DB) queryRecords(query string, args ...interface{}) ([]*models.DailyRecord, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("load daily records: %w", err)
	}
	defer rows.Close()

	var records []*models.DailyRecord
	for rows.Next() {
		var r models.DailyRecord
		var idStr, athleteStr, dateStr, createdAt, updatedAt string
		if err := rows.Scan(&idStr, &athleteStr, &dateStr, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan daily record: %w", err)
		}
		r.ID, _ = uuid.Parse(idStr)
		r.AthleteID, _ = uuid.Parse(athleteStr)
		r.Date, _ = time.ParseInLocation(models.DateKey, dateStr, time.UTC)
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, r := range records {
		if err := d.loadRecordChildren(r); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (d *DB) loadRecordChildren(r *models.DailyRecord) error {
	recordID := r.ID.String()

	row := d.db.QueryRow(`
		SELECT id, resting_heart_rate, avg_heart_rate, max_heart_rate, hrv, spo2
		FROM daily_metrics WHERE daily_record_id = ?`, recordID)
	var m models.DailyMetrics
	var idStr string
	var rhr, ahr, mhr sql.NullInt64
	var hrv, spo2 sql.NullFloat64
	err := row.Scan(&idStr, &rhr, &ahr, &mhr, &hrv, &spo2)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return fmt.Errorf("scan daily metrics: %w", err)
	default:
		m.ID, _ = uuid.Parse(idStr)
		m.RestingHeartRate = intPtr(rhr)
		m.AvgHeartRate = intPtr(ahr)
		m.MaxHeartRate = intPtr(mhr)
		m.HRV = floatPtr(hrv)
		m.SpO2 = floatPtr(spo2)
		r.Metrics = &m
	}

	row = d.db.QueryRow(`
		SELECT id, steps, distance_meters, active_calories
		FROM daily_activities WHERE daily_record_id = ?`, recordID)
	var a models.DailyActivity
	var steps, activeCal sql.NullInt64
	var distance sql.NullFloat64
	err = row.Scan(&idStr, &steps, &distance, &activeCal)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return fmt.Errorf("scan daily activity: %w", err)
	default:
		a.ID, _ = uuid.Parse(idStr)
		a.Steps = intPtr(steps)
		a.DistanceMeters = floatPtr(distance)
		a.ActiveCalories = intPtr(activeCal)
		r.Activity = &a
	}

	row = d.db.QueryRow(`
		SELECT id, avg_level, max_level, rest_minutes
		FROM stress_data WHERE daily_record_id = ?`, recordID)
	var s models.StressData
	var avgLvl, maxLvl, restMin sql.NullInt64
	err = row.Scan(&idStr, &avgLvl, &maxLvl, &restMin)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return fmt.Errorf("scan stress data: %w", err)
	default:
		s.ID, _ = uuid.Parse(idStr)
		s.AvgLevel = intPtr(avgLvl)
		s.MaxLevel = intPtr(maxLvl)
		s.RestMinutes = intPtr(restMin)
		r.Stress = &s
	}

	if err := d.loadSleepSessions(r); err != nil {
		return err
	}
	return d.loadActivitySessions(r)
}

func (d *DB) loadSleepSessions(r *models.DailyRecord) error {
	rows, err := d.db.Query(`
		SELECT id, start_time, end_time, nap, consistency, performance
		FROM sleep_sessions WHERE daily_record_id = ?
		ORDER BY start_time`, r.ID.String())
	if err != nil {
		return fmt.Errorf("load sleep sessions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ss models.SleepSession
		var idStr, startStr, endStr string
		var nap int
		var consistency, performance sql.NullFloat64
		if err := rows.Scan(&idStr, &startStr, &endStr, &nap, &consistency, &performance); err != nil {
			return fmt.Errorf("scan sleep session: %w", err)
		}
		ss.ID, _ = uuid.Parse(idStr)
		ss.DailyRecordID = r.ID
		ss.StartTime, _ = time.Parse(time.RFC3339, startStr)
		ss.EndTime, _ = time.Parse(time.RFC3339, endStr)
		ss.Nap = nap != 0
		ss.Consistency = floatPtr(consistency)
		ss.Performance = floatPtr(performance)
		r.SleepSessions = append(r.SleepSessions, &ss)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, ss := range r.SleepSessions {
		if err := d.loadSleepChildren(ss); err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) loadSleepChildren(ss *models.SleepSession) error {
	sessionID := ss.ID.String()
	var idStr string

	row := d.db.QueryRow(`
		SELECT id, efficiency, latency_seconds
		FROM sleep_perf_metrics WHERE sleep_session_id = ?`, sessionID)
	var perf models.PerfMetrics
	var efficiency sql.NullFloat64
	var latency sql.NullInt64
	err := row.Scan(&idStr, &efficiency, &latency)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return fmt.Errorf("scan sleep perf metrics: %w", err)
	default:
		perf.ID, _ = uuid.Parse(idStr)
		perf.Efficiency = floatPtr(efficiency)
		perf.LatencySeconds = intPtr(latency)
		ss.Perf = &perf
	}

	row = d.db.QueryRow(`
		SELECT id, avg_heart_rate, min_heart_rate, avg_hrv
		FROM sleep_hr_metrics WHERE sleep_session_id = ?`, sessionID)
	var hr models.HrMetrics
	var avgHr, minHr sql.NullInt64
	var avgHrv sql.NullFloat64
	err = row.Scan(&idStr, &avgHr, &minHr, &avgHrv)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return fmt.Errorf("scan sleep hr metrics: %w", err)
	default:
		hr.ID, _ = uuid.Parse(idStr)
		hr.AvgHeartRate = intPtr(avgHr)
		hr.MinHeartRate = intPtr(minHr)
		hr.AvgHRV = floatPtr(avgHrv)
		ss.Hr = &hr
	}

	row = d.db.QueryRow(`
		SELECT id, deep_seconds, rem_seconds, light_seconds, awake_seconds
		FROM sleep_stage_metrics WHERE sleep_session_id = ?`, sessionID)
	var stages models.StageMetrics
	var deep, rem, light, awake sql.NullInt64
	err = row.Scan(&idStr, &deep, &rem, &light, &awake)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return fmt.Errorf("scan sleep stage metrics: %w", err)
	default:
		stages.ID, _ = uuid.Parse(idStr)
		stages.DeepSeconds = intPtr(deep)
		stages.RemSeconds = intPtr(rem)
		stages.LightSeconds = intPtr(light)
		stages.AwakeSeconds = intPtr(awake)
		ss.Stages = &stages
	}

	row = d.db.QueryRow(`
		SELECT id, avg_rate, min_rate, max_rate
		FROM sleep_respiration WHERE sleep_session_id = ?`, sessionID)
	var resp models.RespirationData
	var avgRate, minRate, maxRate sql.NullFloat64
	err = row.Scan(&idStr, &avgRate, &minRate, &maxRate)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return fmt.Errorf("scan sleep respiration: %w", err)
	default:
		resp.ID, _ = uuid.Parse(idStr)
		resp.AvgRate = floatPtr(avgRate)
		resp.MinRate = floatPtr(minRate)
		resp.MaxRate = floatPtr(maxRate)
		ss.Respiration = &resp
	}
	return nil
}

func (d *DB) loadActivitySessions(r *models.DailyRecord) error {
	rows, err := d.db.Query(`
		SELECT id, start_time, end_time, activity_type
		FROM activity_sessions WHERE daily_record_id = ?
		ORDER BY start_time`, r.ID.String())
	if err != nil {
		return fmt.Errorf("load activity sessions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var as models.ActivitySession
		var idStr, startStr, endStr string
		if err := rows.Scan(&idStr, &startStr, &endStr, &as.ActivityType); err != nil {
			return fmt.Errorf("scan activity session: %w", err)
		}
		as.ID, _ = uuid.Parse(idStr)
		as.DailyRecordID = r.ID
		as.StartTime, _ = time.Parse(time.RFC3339, startStr)
		as.EndTime, _ = time.Parse(time.RFC3339, endStr)
		r.ActivitySessions = append(r.ActivitySessions, &as)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, as := range r.ActivitySessions {
		if err := d.loadActivityChildren(as); err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) loadActivityChildren(as *models.ActivitySession) error {
	var idStr string

	row := d.db.QueryRow(`
		SELECT id, calories, avg_heart_rate
		FROM activity_metrics WHERE activity_session_id = ?`, as.ID.String())
	var am models.ActivityMetrics
	var calories, avgHr sql.NullInt64
	err := row.Scan(&idStr, &calories, &avgHr)
	switch {
	case err == sql.ErrNoRows:
		return nil
	case err != nil:
		return fmt.Errorf("scan activity metrics: %w", err)
	}
	am.ID, _ = uuid.Parse(idStr)
	am.Calories = intPtr(calories)
	am.AvgHeartRate = intPtr(avgHr)
	as.Metrics = &am

	row = d.db.QueryRow(`
		SELECT id, distance_meters, steps, avg_speed_mps
		FROM activity_movement WHERE activity_metrics_id = ?`, am.ID.String())
	var mv models.ActivityMovementData
	var distance, speed sql.NullFloat64
	var steps sql.NullInt64
	err = row.Scan(&idStr, &distance, &steps, &speed)
	switch {
	case err == sql.ErrNoRows:
		return nil
	case err != nil:
		return fmt.Errorf("scan activity movement: %w", err)
	}
	mv.ID, _ = uuid.Parse(idStr)
	mv.DistanceMeters = floatPtr(distance)
	mv.Steps = intPtr(steps)
	mv.AvgSpeedMps = floatPtr(speed)
	am.Movement = &mv
	return nil
}

// SaveDailyRecords persists the given record set in a single
// transaction, cascading through every nested entity. Entities are
// upserted by primary key; the reconciler is responsible for having
// resolved identifiers beforehand. The derived consistency and
// performance columns on sleep sessions are never touched here; they
// belong to UpdateSleepScores.
func (d *DB) SaveDailyRecords(records []*models.DailyRecord) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	for _, r := range records {
		if err := saveRecordTx(tx, r); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

func saveRecordTx(tx *sql.Tx, r *models.DailyRecord) error {
	_, err := tx.Exec(`
		INSERT INTO daily_records (id, athlete_id, date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			updated_at = excluded.updated_at`,
		r.ID.String(),
		r.AthleteID.String(),
		r.Date.UTC().Format(models.DateKey),
		r.CreatedAt.UTC().Format(time.RFC3339),
		r.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save daily record %s: %w", r.DateKey(), err)
	}
	recordID := r.ID.String()

	if m := r.Metrics; m != nil {
		_, err = tx.Exec(`
			INSERT INTO daily_metrics (id, daily_record_id, resting_heart_rate, avg_heart_rate, max_heart_rate, hrv, spo2)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				resting_heart_rate = excluded.resting_heart_rate,
				avg_heart_rate = excluded.avg_heart_rate,
				max_heart_rate = excluded.max_heart_rate,
				hrv = excluded.hrv,
				spo2 = excluded.spo2`,
			m.ID.String(), recordID, m.RestingHeartRate, m.AvgHeartRate, m.MaxHeartRate, m.HRV, m.SpO2,
		)
		if err != nil {
			return fmt.Errorf("save daily metrics: %w", err)
		}
	}

	if a := r.Activity; a != nil {
		_, err = tx.Exec(`
			INSERT INTO daily_activities (id, daily_record_id, steps, distance_meters, active_calories)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				steps = excluded.steps,
				distance_meters = excluded.distance_meters,
				active_calories = excluded.active_calories`,
			a.ID.String(), recordID, a.Steps, a.DistanceMeters, a.ActiveCalories,
		)
		if err != nil {
			return fmt.Errorf("save daily activity: %w", err)
		}
	}

	if s := r.Stress; s != nil {
		_, err = tx.Exec(`
			INSERT INTO stress_data (id, daily_record_id, avg_level, max_level, rest_minutes)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				avg_level = excluded.avg_level,
				max_level = excluded.max_level,
				rest_minutes = excluded.rest_minutes`,
			s.ID.String(), recordID, s.AvgLevel, s.MaxLevel, s.RestMinutes,
		)
		if err != nil {
			return fmt.Errorf("save stress data: %w", err)
		}
	}

	for _, ss := range r.SleepSessions {
		if err := saveSleepSessionTx(tx, recordID, ss); err != nil {
			return err
		}
	}
	for _, as := range r.ActivitySessions {
		if err := saveActivitySessionTx(tx, recordID, as); err != nil {
			return err
		}
	}
	return nil
}

func saveSleepSessionTx(tx *sql.Tx, recordID string, ss *models.SleepSession) error {
	// consistency/performance deliberately absent from the update
	// clause: they are derived fields owned by the analytics recompute.
	_, err := tx.Exec(`
		INSERT INTO sleep_sessions (id, daily_record_id, start_time, end_time, nap)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			daily_record_id = excluded.daily_record_id,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			nap = excluded.nap`,
		ss.ID.String(), recordID,
		ss.StartTime.UTC().Format(time.RFC3339),
		ss.EndTime.UTC().Format(time.RFC3339),
		boolInt(ss.Nap),
	)
	if err != nil {
		return fmt.Errorf("save sleep session: %w", err)
	}
	sessionID := ss.ID.String()

	if p := ss.Perf; p != nil {
		_, err = tx.Exec(`
			INSERT INTO sleep_perf_metrics (id, sleep_session_id, efficiency, latency_seconds)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				efficiency = excluded.efficiency,
				latency_seconds = excluded.latency_seconds`,
			p.ID.String(), sessionID, p.Efficiency, p.LatencySeconds,
		)
		if err != nil {
			return fmt.Errorf("save sleep perf metrics: %w", err)
		}
	}
	if h := ss.Hr; h != nil {
		_, err = tx.Exec(`
			INSERT INTO sleep_hr_metrics (id, sleep_session_id, avg_heart_rate, min_heart_rate, avg_hrv)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				avg_heart_rate = excluded.avg_heart_rate,
				min_heart_rate = excluded.min_heart_rate,
				avg_hrv = excluded.avg_hrv`,
			h.ID.String(), sessionID, h.AvgHeartRate, h.MinHeartRate, h.AvgHRV,
		)
		if err != nil {
			return fmt.Errorf("save sleep hr metrics: %w", err)
		}
	}
	if st := ss.Stages; st != nil {
		_, err = tx.Exec(`
			INSERT INTO sleep_stage_metrics (id, sleep_session_id, deep_seconds, rem_seconds, light_seconds, awake_seconds)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				deep_seconds = excluded.deep_seconds,
				rem_seconds = excluded.rem_seconds,
				light_seconds = excluded.light_seconds,
				awake_seconds = excluded.awake_seconds`,
			st.ID.String(), sessionID, st.DeepSeconds, st.RemSeconds, st.LightSeconds, st.AwakeSeconds,
		)
		if err != nil {
			return fmt.Errorf("save sleep stage metrics: %w", err)
		}
	}
	if rsp := ss.Respiration; rsp != nil {
		_, err = tx.Exec(`
			INSERT INTO sleep_respiration (id, sleep_session_id, avg_rate, min_rate, max_rate)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				avg_rate = excluded.avg_rate,
				min_rate = excluded.min_rate,
				max_rate = excluded.max_rate`,
			rsp.ID.String(), sessionID, rsp.AvgRate, rsp.MinRate, rsp.MaxRate,
		)
		if err != nil {
			return fmt.Errorf("save sleep respiration: %w", err)
		}
	}
	return nil
}

func saveActivitySessionTx(tx *sql.Tx, recordID string, as *models.ActivitySession) error {
	_, err := tx.Exec(`
		INSERT INTO activity_sessions (id, daily_record_id, start_time, end_time, activity_type)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			daily_record_id = excluded.daily_record_id,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			activity_type = excluded.activity_type`,
		as.ID.String(), recordID,
		as.StartTime.UTC().Format(time.RFC3339),
		as.EndTime.UTC().Format(time.RFC3339),
		as.ActivityType,
	)
	if err != nil {
		return fmt.Errorf("save activity session: %w", err)
	}

	if m := as.Metrics; m != nil {
		_, err = tx.Exec(`
			INSERT INTO activity_metrics (id, activity_session_id, calories, avg_heart_rate)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				calories = excluded.calories,
				avg_heart_rate = excluded.avg_heart_rate`,
			m.ID.String(), as.ID.String(), m.Calories, m.AvgHeartRate,
		)
		if err != nil {
			return fmt.Errorf("save activity metrics: %w", err)
		}
		if mv := m.Movement; mv != nil {
			_, err = tx.Exec(`
				INSERT INTO activity_movement (id, activity_metrics_id, distance_meters, steps, avg_speed_mps)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					distance_meters = excluded.distance_meters,
					steps = excluded.steps,
					avg_speed_mps = excluded.avg_speed_mps`,
				mv.ID.String(), m.ID.String(), mv.DistanceMeters, mv.Steps, mv.AvgSpeedMps,
			)
			if err != nil {
				return fmt.Errorf("save activity movement: %w", err)
			}
		}
	}
	return nil
}

// UpdateSleepScores fills the derived consistency and performance
// fields on a persisted sleep session.
func (d *DB) UpdateSleepScores(sessionID uuid.UUID, consistency, performance *float64) error {
	result, err := d.db.Exec(`
		UPDATE sleep_sessions SET consistency = ?, performance = ? WHERE id = ?`,
		consistency, performance, sessionID.String(),
	)
	if err != nil {
		return fmt.Errorf("update sleep scores: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update sleep scores: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("sleep session not found: %s", sessionID)
	}
	return nil
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
