package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/capdesk/capdesk/core/defense"
	"github.com/capdesk/capdesk/core/evaluation"
	"github.com/capdesk/capdesk/core/group"
	"github.com/capdesk/capdesk/core/user"
	testutil "github.com/capdesk/capdesk/tests"
)

func Test_defenseApi_feedbackView(t *testing.T) {
	app := setup(t)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	grp := testutil.CreateGroup(t, grpRepo, "Synthwave", "BSIT", "4A", "Dr. Reyes", group.Member{StudentID: "s1", Name: "One"})

	// base layer: legacy wide record, overlapping the newer entry below
	defRepo.SetLegacyStageStatus(defense.LegacyStageStatus{
		GroupID: grp.ID,
		Stage:   defense.StageTitle,
		StatusBySlot: map[string]map[string]string{
			"Manuscript": {"dr. reyes": "approved-with-revisions"},
		},
		RemarksBySlot: map[string]map[string]string{
			"Manuscript": {"dr. reyes": "fix chapter 2"},
		},
	})
	// overlay: the entry wins the status cell
	testutil.CreateFeedback(t, defRepo, grp.ID, defense.StageTitle, "manuscript", "Dr. Reyes", defense.StatusApproved, "")
	// overlay: annotations are authoritative for URLs
	if _, err := defRepo.UpsertFileAnnotation(context.Background(), defense.FileAnnotation{
		GroupID: grp.ID, Stage: defense.StageTitle, FileSlot: "MANUSCRIPT", Panelist: "Dr. Reyes",
		URL: "https://files.test.cd/ann.pdf", UpdatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("UpsertFileAnnotation() failed: %v", err)
	}

	want := marchallList(t, map[string]interface{}{
		"file_slot":              "manuscript",
		"status_by_panelist":     map[string]string{"Dr. Reyes": "Approved"},
		"remarks_by_panelist":    map[string]string{"Dr. Reyes": "fix chapter 2"},
		"annotation_by_panelist": map[string]string{"Dr. Reyes": "https://files.test.cd/ann.pdf"},
		"verdict":                "Approved",
		"can_revise":             false,
	})

	tests := []httpTest{
		{name: "auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "unknown stage", path: "/v1/groups/" + grp.ID + "/defenses/lol/feedback", token: getToken(t, student),
			wantCode: http.StatusNotFound,
		},
		{
			name: "merged view", path: "/v1/groups/" + grp.ID + "/defenses/title/feedback", token: getToken(t, student),
			wantCode: http.StatusOK, wantData: want,
		},
		{
			name: "stage name variants", path: "/v1/groups/" + grp.ID + "/defenses/Title%20Defense/feedback", token: getToken(t, student),
			wantCode: http.StatusOK, wantData: want,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tt.path
			if path == "" {
				path = "/v1/groups/" + grp.ID + "/defenses/title/feedback"
			}
			req, rec := newAuthRequest(http.MethodGet, path, tt.token)
			app.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantData != nil {
				checkCodeAndData(t, tt, rec)
			}
		})
	}
}

func Test_defenseApi_putFeedback(t *testing.T) {
	app := setup(t)

	panelist := testutil.CreateUser(t, usrRepo, "Dr. Reyes", "dreyes", "dreyes@test.cd", "", []string{user.RolePanelist}, true)
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	grp := testutil.CreateGroup(t, grpRepo, "Synthwave", "BSIT", "4A", "Dr. Reyes", group.Member{StudentID: "s1", Name: "One"})

	path := "/v1/groups/" + grp.ID + "/defenses/title/feedback"
	str := func(s string) *string { return &s }

	t.Run("panelist required", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{"file_slot": "Manuscript", "status": "Approved"})
		req, rec := newAuthRequest(http.MethodPut, path, getToken(t, student), body)
		app.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("status not allowed at stage", func(t *testing.T) {
		// Completed only exists at the Final stage
		body := marchallObj(t, map[string]interface{}{"file_slot": "Manuscript", "status": "Completed"})
		req, rec := newAuthRequest(http.MethodPut, path, getToken(t, panelist), body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("records status", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{"file_slot": "Manuscript", "status": "approved-with-revisions"})
		req, rec := newAuthRequest(http.MethodPut, path, getToken(t, panelist), body)
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		var entry defense.FeedbackEntry
		if err := json.Unmarshal(rec.Body.Bytes(), &entry); err != nil {
			t.Fatalf("unmarshalling FeedbackEntry: %v", err)
		}
		if entry.FileSlot != "manuscript" || entry.Panelist != "Dr. Reyes" || entry.Status != defense.StatusApprovedWithRevisions {
			t.Errorf("unexpected entry: %+v", entry)
		}
	})

	t.Run("partial update keeps other fields", func(t *testing.T) {
		body := marchallObj(t, map[string]*string{"file_slot": str("Manuscript"), "remarks": str("tighten chapter 3")})
		req, rec := newAuthRequest(http.MethodPut, path, getToken(t, panelist), body)
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		entry, err := defRepo.GetFeedbackEntry(context.Background(), grp.ID, defense.StageTitle, "manuscript", "drreyes")
		if err != nil {
			t.Fatalf("GetFeedbackEntry() failed: %v", err)
		}
		if entry == nil {
			t.Fatal("expected a stored entry")
		}
		if entry.Status != defense.StatusApprovedWithRevisions {
			t.Errorf("status = %s, want it preserved", entry.Status)
		}
		if entry.Remarks != "tighten chapter 3" {
			t.Errorf("remarks = %q", entry.Remarks)
		}
	})
}

func Test_defenseApi_submissions(t *testing.T) {
	app := setup(t)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	grp := testutil.CreateGroup(t, grpRepo, "Synthwave", "BSIT", "4A", "Dr. Reyes", group.Member{StudentID: "s1", Name: "One"})

	path := "/v1/groups/" + grp.ID + "/defenses/title/submissions"
	token := getToken(t, student)

	put := func(t *testing.T, url string, revised bool) *http.Response {
		t.Helper()
		body := marchallObj(t, map[string]interface{}{"file_slot": "Manuscript", "url": url, "revised": revised})
		req, rec := newAuthRequest(http.MethodPut, path, token, body)
		app.ServeHTTP(rec, req)
		return rec.Result()
	}

	t.Run("original", func(t *testing.T) {
		if resp := put(t, "https://files.test.cd/v1.pdf", false); resp.StatusCode != http.StatusOK {
			t.Fatalf("code = %v", resp.StatusCode)
		}
	})

	t.Run("original locks once set", func(t *testing.T) {
		if resp := put(t, "https://files.test.cd/v2.pdf", false); resp.StatusCode != http.StatusForbidden {
			t.Fatalf("code = %v, want 403", resp.StatusCode)
		}
	})

	t.Run("revision locked below feedback threshold", func(t *testing.T) {
		testutil.CreateFeedback(t, defRepo, grp.ID, defense.StageTitle, "manuscript", "Dr. Reyes", defense.StatusApprovedWithRevisions, "fix abstract")
		if resp := put(t, "https://files.test.cd/v2.pdf", true); resp.StatusCode != http.StatusForbidden {
			t.Fatalf("code = %v, want 403", resp.StatusCode)
		}
	})

	t.Run("revision unlocks at two substantive reviews", func(t *testing.T) {
		testutil.CreateFeedback(t, defRepo, grp.ID, defense.StageTitle, "manuscript", "Prof. Cruz", defense.StatusRejected, "weak scope")
		if resp := put(t, "https://files.test.cd/v2.pdf", true); resp.StatusCode != http.StatusOK {
			t.Fatalf("code = %v, want 200", resp.StatusCode)
		}

		sub, err := defRepo.GetSubmission(context.Background(), grp.ID, defense.StageTitle, "manuscript")
		if err != nil {
			t.Fatalf("GetSubmission() failed: %v", err)
		}
		if sub == nil || sub.OriginalURL != "https://files.test.cd/v1.pdf" || sub.RevisedURL != "https://files.test.cd/v2.pdf" {
			t.Errorf("unexpected submission: %+v", sub)
		}
	})
}

func Test_defenseApi_gateStatus(t *testing.T) {
	app := setup(t)

	panelist := testutil.CreateUser(t, usrRepo, "Dr. Reyes", "dreyes", "dreyes@test.cd", "", []string{user.RolePanelist}, true)
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	grp := testutil.CreateGroup(t, grpRepo, "Synthwave", "BSIT", "4A", "Dr. Reyes", group.Member{StudentID: "s1", Name: "One"})

	path := "/v1/groups/" + grp.ID + "/gate-status"

	t.Run("panelist required", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, path, getToken(t, student))
		app.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("nothing open before scheduling", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, path, getToken(t, panelist))
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		var gs defense.GateStatus
		if err := json.Unmarshal(rec.Body.Bytes(), &gs); err != nil {
			t.Fatalf("unmarshalling GateStatus: %v", err)
		}
		if gs.TitleEvaluated || len(gs.CanAdvanceTo) != 0 {
			t.Errorf("unexpected gate status: %+v", gs)
		}
	})

	t.Run("title opens once scheduled", func(t *testing.T) {
		testutil.CreateSchedule(t, defRepo, grp.ID, defense.StageTitle, time.Now().Add(24*time.Hour), "Dr. Reyes")

		req, rec := newAuthRequest(http.MethodGet, path, getToken(t, panelist))
		app.ServeHTTP(rec, req)

		var gs defense.GateStatus
		if err := json.Unmarshal(rec.Body.Bytes(), &gs); err != nil {
			t.Fatalf("unmarshalling GateStatus: %v", err)
		}
		if len(gs.CanAdvanceTo) != 1 || gs.CanAdvanceTo[0] != defense.StageTitle {
			t.Errorf("can_advance_to = %v, want [Title]", gs.CanAdvanceTo)
		}
	})
}

func Test_defenseApi_schedule(t *testing.T) {
	app := setup(t)

	instructor := testutil.CreateUser(t, usrRepo, "Prof. Cruz", "pcruz", "pcruz@test.cd", "", []string{user.RoleInstructor}, true)
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	g1 := testutil.CreateGroup(t, grpRepo, "Synthwave", "BSIT", "4A", "Dr. Reyes",
		group.Member{StudentID: "s1", Name: "One"}, group.Member{StudentID: "s2", Name: "Two"})
	g2 := testutil.CreateGroup(t, grpRepo, "Moonshot", "BSIT", "4A", "Dr. Reyes", group.Member{StudentID: "s3", Name: "Three"})

	token := getToken(t, instructor)
	startsAt := time.Date(2026, 10, 5, 9, 0, 0, 0, time.UTC)

	post := func(t *testing.T, groupID, stage string, at time.Time, panelists ...string) (*http.Response, []byte) {
		t.Helper()
		body := marchallObj(t, map[string]interface{}{"starts_at": at, "venue": "AVR 1", "panelists": panelists})
		req, rec := newAuthRequest(http.MethodPost, "/v1/groups/"+groupID+"/defenses/"+stage+"/schedule", token, body)
		app.ServeHTTP(rec, req)
		return rec.Result(), rec.Body.Bytes()
	}

	t.Run("instructor required", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{"starts_at": startsAt, "venue": "AVR 1"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/groups/"+g1.ID+"/defenses/title/schedule", getToken(t, student), body)
		app.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("title", func(t *testing.T) {
		resp, body := post(t, g1.ID, "title", startsAt, "Dr. Reyes", "Engr. Santos")
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("code = %v; body %s", resp.StatusCode, body)
		}
		var sched defense.Schedule
		if err := json.Unmarshal(body, &sched); err != nil {
			t.Fatalf("unmarshalling Schedule: %v", err)
		}
		if sched.ID == "" || sched.PanelLocked {
			t.Errorf("unexpected schedule: %+v", sched)
		}
	})

	t.Run("duplicate stage booking denied", func(t *testing.T) {
		resp, _ := post(t, g1.ID, "title", startsAt.Add(3*time.Hour), "Dr. Reyes")
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("code = %v, want 403", resp.StatusCode)
		}
	})

	t.Run("panelist conflict within the hour", func(t *testing.T) {
		resp, _ := post(t, g2.ID, "title", startsAt.Add(30*time.Minute), "Dr. Reyes")
		if resp.StatusCode != http.StatusConflict {
			t.Fatalf("code = %v, want 409", resp.StatusCode)
		}
	})

	t.Run("same panel later that day is fine", func(t *testing.T) {
		resp, _ := post(t, g2.ID, "title", startsAt.Add(2*time.Hour), "Dr. Reyes")
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("code = %v, want 201", resp.StatusCode)
		}
	})

	t.Run("preoral denied until member grades are in", func(t *testing.T) {
		resp, _ := post(t, g1.ID, "preoral", startsAt.AddDate(0, 1, 0))
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("code = %v, want 403", resp.StatusCode)
		}
	})

	t.Run("preoral inherits the locked title panel", func(t *testing.T) {
		for _, id := range []string{"s1", "s2"} {
			grade := 88.5
			if err := evalRepo.UpsertGrade(context.Background(), evaluation.GradeRecord{
				StudentID: id, Stage: defense.StageTitle, Grade: &grade, EnteredBy: "Prof. Cruz", UpdatedAt: time.Now().UTC(),
			}); err != nil {
				t.Fatalf("UpsertGrade() failed: %v", err)
			}
		}

		resp, body := post(t, g1.ID, "preoral", startsAt.AddDate(0, 1, 0))
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("code = %v; body %s", resp.StatusCode, body)
		}
		var sched defense.Schedule
		if err := json.Unmarshal(body, &sched); err != nil {
			t.Fatalf("unmarshalling Schedule: %v", err)
		}
		if !sched.PanelLocked || len(sched.Panelists) != 2 {
			t.Errorf("unexpected panel: %+v", sched)
		}
	})
}

func Test_defenseApi_verdictsAndDashboard(t *testing.T) {
	app := setup(t)

	instructor := testutil.CreateUser(t, usrRepo, "Prof. Cruz", "pcruz", "pcruz@test.cd", "", []string{user.RoleInstructor}, true)
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	token := getToken(t, instructor)

	g1 := testutil.CreateGroup(t, grpRepo, "Synthwave", "BSIT", "4A", "Dr. Reyes", group.Member{StudentID: "s1", Name: "One"})
	g2 := testutil.CreateGroup(t, grpRepo, "Moonshot", "BSCS", "4B", "Prof. Cruz", group.Member{StudentID: "s2", Name: "Two"})

	// g1 made it through; g2 fell at the first hurdle
	testutil.CreateFeedback(t, defRepo, g1.ID, defense.StageTitle, "manuscript", "Dr. Reyes", defense.StatusApproved, "")
	testutil.CreateFeedback(t, defRepo, g1.ID, defense.StageFinal, "manuscript", "Dr. Reyes", defense.StatusCompleted, "")
	testutil.CreateFeedback(t, defRepo, g2.ID, defense.StageTitle, "manuscript", "Dr. Reyes", defense.StatusRejected, "out of scope")

	t.Run("verdicts", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/groups/"+g1.ID+"/verdicts", token)
		app.ServeHTTP(rec, req)

		tt := httpTest{
			wantCode: http.StatusOK,
			wantData: marchallObj(t, defense.GroupVerdicts{
				Title:   defense.VerdictApproved,
				PreOral: defense.VerdictPending,
				Final:   defense.VerdictApproved,
			}),
		}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("one approving panelist outweighs rejections", func(t *testing.T) {
		testutil.CreateFeedback(t, defRepo, g2.ID, defense.StageTitle, "manuscript", "Engr. Santos", defense.StatusApproved, "")

		req, rec := newAuthRequest(http.MethodGet, "/v1/groups/"+g2.ID+"/verdicts", token)
		app.ServeHTTP(rec, req)

		var gv defense.GroupVerdicts
		if err := json.Unmarshal(rec.Body.Bytes(), &gv); err != nil {
			t.Fatalf("unmarshalling GroupVerdicts: %v", err)
		}
		if gv.Title != defense.VerdictApproved {
			t.Errorf("title = %s, want Approved", gv.Title)
		}
	})

	t.Run("dashboard forbidden for students", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/dashboard", getToken(t, student))
		app.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("dashboard", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/dashboard", token)
		app.ServeHTTP(rec, req)

		// both groups now read approved at Title; only g1 completed Final
		tt := httpTest{
			wantCode: http.StatusOK,
			wantData: marchallObj(t, defense.DashboardCounts{Approved: 2, Completed: 1}),
		}
		checkCodeAndData(t, tt, rec)
	})
}
