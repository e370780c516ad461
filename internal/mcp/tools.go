// ABOUTME: MCP tool implementations for wearable data.
// ABOUTME: Read-only lookups over athletes, daily records, scores, and backfills.
package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/teamfit/wearsync/internal/analytics"
	"github.com/teamfit/wearsync/internal/models"
)

func (s *Server) registerTools() {
	// list_athletes
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_athletes",
		Description: "List all athletes",
	}, s.handleListAthletes)

	// get_daily_record
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_daily_record",
		Description: "Get one athlete's daily record for a date, including sleep and activity sessions",
	}, s.handleGetDailyRecord)

	// get_sleep_scores
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_sleep_scores",
		Description: "Get an athlete's sleep consistency and performance scores over a date range",
	}, s.handleGetSleepScores)

	// list_backfills
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_backfills",
		Description: "List open historical backfill sessions with their chunk progress",
	}, s.handleListBackfills)
}

// Tool input/output types

type athleteOutput struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	DateOfBirth    string `json:"date_of_birth,omitempty"`
	ProviderUserID string `json:"provider_user_id,omitempty"`
}

type listAthletesInput struct{}

type listAthletesOutput struct {
	Athletes []athleteOutput `json:"athletes"`
}

type getDailyRecordInput struct {
	AthleteID string `json:"athlete_id" jsonschema:"description=Athlete UUID,required"`
	Date      string `json:"date" jsonschema:"description=Calendar date (YYYY-MM-DD),required"`
}

type sleepSessionOutput struct {
	StartTime   string   `json:"start_time"`
	EndTime     string   `json:"end_time"`
	Nap         bool     `json:"nap"`
	Consistency *float64 `json:"consistency,omitempty"`
	Performance *float64 `json:"performance,omitempty"`
	AsleepHours *float64 `json:"asleep_hours,omitempty"`
}

type activitySessionOutput struct {
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	ActivityType string `json:"activity_type"`
	Calories     *int   `json:"calories,omitempty"`
}

type dailyRecordOutput struct {
	Date             string                  `json:"date"`
	RestingHeartRate *int                    `json:"resting_heart_rate,omitempty"`
	HRV              *float64                `json:"hrv_ms,omitempty"`
	Steps            *int                    `json:"steps,omitempty"`
	SleepSessions    []sleepSessionOutput    `json:"sleep_sessions"`
	ActivitySessions []activitySessionOutput `json:"activity_sessions"`
}

type getSleepScoresInput struct {
	AthleteID string `json:"athlete_id" jsonschema:"description=Athlete UUID,required"`
	From      string `json:"from" jsonschema:"description=Range start (YYYY-MM-DD),required"`
	To        string `json:"to" jsonschema:"description=Range end (YYYY-MM-DD),required"`
}

type sleepScoreOutput struct {
	Date        string   `json:"date"`
	Consistency *float64 `json:"consistency,omitempty"`
	Performance *float64 `json:"performance,omitempty"`
}

type sleepScoresOutput struct {
	Scores []sleepScoreOutput `json:"scores"`
}

type listBackfillsInput struct{}

type backfillOutput struct {
	SessionID string         `json:"session_id"`
	AthleteID string         `json:"athlete_id"`
	StartDate string         `json:"start_date"`
	EndDate   string         `json:"end_date"`
	Progress  map[string]any `json:"progress"`
}

type listBackfillsOutput struct {
	Backfills []backfillOutput `json:"backfills"`
}

// Tool handlers

func (s *Server) handleListAthletes(ctx context.Context, req *mcp.CallToolRequest, input listAthletesInput) (*mcp.CallToolResult, listAthletesOutput, error) {
	athletes, err := s.repo.ListAthletes()
	if err != nil {
		return nil, listAthletesOutput{}, fmt.Errorf("list athletes: %w", err)
	}
	out := listAthletesOutput{Athletes: make([]athleteOutput, 0, len(athletes))}
	for _, a := range athletes {
		ao := athleteOutput{ID: a.ID.String(), Name: a.Name}
		if a.DateOfBirth != nil {
			ao.DateOfBirth = a.DateOfBirth.Format(models.DateKey)
		}
		if a.ProviderUserID != nil {
			ao.ProviderUserID = *a.ProviderUserID
		}
		out.Athletes = append(out.Athletes, ao)
	}
	return nil, out, nil
}

func (s *Server) handleGetDailyRecord(ctx context.Context, req *mcp.CallToolRequest, input getDailyRecordInput) (*mcp.CallToolResult, dailyRecordOutput, error) {
	athleteID, err := uuid.Parse(input.AthleteID)
	if err != nil {
		return nil, dailyRecordOutput{}, fmt.Errorf("invalid athlete ID: %w", err)
	}
	date, err := time.ParseInLocation(models.DateKey, input.Date, time.UTC)
	if err != nil {
		return nil, dailyRecordOutput{}, fmt.Errorf("invalid date (want YYYY-MM-DD): %w", err)
	}

	records, err := s.repo.LoadDailyRecords(athleteID, []time.Time{date})
	if err != nil {
		return nil, dailyRecordOutput{}, fmt.Errorf("load daily record: %w", err)
	}
	if len(records) == 0 {
		return nil, dailyRecordOutput{}, fmt.Errorf("no record for %s", input.Date)
	}
	r := records[0]

	out := dailyRecordOutput{Date: r.DateKey()}
	if r.Metrics != nil {
		out.RestingHeartRate = r.Metrics.RestingHeartRate
		out.HRV = r.Metrics.HRV
	}
	if r.Activity != nil {
		out.Steps = r.Activity.Steps
	}
	for _, ss := range r.SleepSessions {
		so := sleepSessionOutput{
			StartTime:   ss.StartTime.Format(time.RFC3339),
			EndTime:     ss.EndTime.Format(time.RFC3339),
			Nap:         ss.Nap,
			Consistency: ss.Consistency,
			Performance: ss.Performance,
		}
		if asleep := ss.Stages.AsleepSeconds(); asleep != nil {
			hours := float64(*asleep) / 3600
			so.AsleepHours = &hours
		}
		out.SleepSessions = append(out.SleepSessions, so)
	}
	for _, as := range r.ActivitySessions {
		ao := activitySessionOutput{
			StartTime:    as.StartTime.Format(time.RFC3339),
			EndTime:      as.EndTime.Format(time.RFC3339),
			ActivityType: as.ActivityType,
		}
		if as.Metrics != nil {
			ao.Calories = as.Metrics.Calories
		}
		out.ActivitySessions = append(out.ActivitySessions, ao)
	}
	return nil, out, nil
}

func (s *Server) handleGetSleepScores(ctx context.Context, req *mcp.CallToolRequest, input getSleepScoresInput) (*mcp.CallToolResult, sleepScoresOutput, error) {
	athleteID, err := uuid.Parse(input.AthleteID)
	if err != nil {
		return nil, sleepScoresOutput{}, fmt.Errorf("invalid athlete ID: %w", err)
	}
	from, err := time.ParseInLocation(models.DateKey, input.From, time.UTC)
	if err != nil {
		return nil, sleepScoresOutput{}, fmt.Errorf("invalid from date: %w", err)
	}
	to, err := time.ParseInLocation(models.DateKey, input.To, time.UTC)
	if err != nil {
		return nil, sleepScoresOutput{}, fmt.Errorf("invalid to date: %w", err)
	}

	records, err := s.repo.LoadDailyRecordRange(athleteID, from, to)
	if err != nil {
		return nil, sleepScoresOutput{}, fmt.Errorf("load record range: %w", err)
	}
	out := sleepScoresOutput{Scores: make([]sleepScoreOutput, 0, len(records))}
	for _, r := range records {
		primary := analytics.PrimarySleepSession(r)
		if primary == nil {
			continue
		}
		out.Scores = append(out.Scores, sleepScoreOutput{
			Date:        r.DateKey(),
			Consistency: primary.Consistency,
			Performance: primary.Performance,
		})
	}
	return nil, out, nil
}

func (s *Server) handleListBackfills(ctx context.Context, req *mcp.CallToolRequest, input listBackfillsInput) (*mcp.CallToolResult, listBackfillsOutput, error) {
	sessions, err := s.repo.ListOpenSyncSessions()
	if err != nil {
		return nil, listBackfillsOutput{}, fmt.Errorf("list open sessions: %w", err)
	}
	out := listBackfillsOutput{Backfills: make([]backfillOutput, 0, len(sessions))}
	for _, session := range sessions {
		bo := backfillOutput{
			SessionID: session.ID,
			AthleteID: session.AthleteID.String(),
			StartDate: session.StartDate.Format(models.DateKey),
			EndDate:   session.EndDate.Format(models.DateKey),
			Progress:  make(map[string]any, len(models.Categories)),
		}
		for _, c := range models.Categories {
			p := session.Progress[c]
			if p == nil {
				p = &models.CategoryProgress{}
			}
			entry := map[string]any{"received": p.Received, "done": p.Done()}
			if p.Expected != nil {
				entry["expected"] = *p.Expected
			}
			bo.Progress[string(c)] = entry
		}
		out.Backfills = append(out.Backfills, bo)
	}
	return nil, out, nil
}
