package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/capdesk/capdesk/core/group"
	"github.com/capdesk/capdesk/core/user"
	testutil "github.com/capdesk/capdesk/tests"
)

func Test_groupApi_create(t *testing.T) {
	app := setup(t)

	instructor := testutil.CreateUser(t, usrRepo, "Prof. Cruz", "pcruz", "pcruz@test.cd", "", []string{user.RoleInstructor}, true)
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)

	payload := group.NewGroup{
		Name:    "Synthwave",
		Program: "BSIT",
		Section: "4A",
		Adviser: "Dr. Reyes",
		Members: []group.Member{
			{StudentID: "2021-00123", Name: "Hero Dela Cruz"},
			{StudentID: "2021-00456", Name: "Jane Ramos"},
		},
	}

	tests := []httpTest{
		{name: "auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "instructor required", token: getToken(t, student), body: marchallObj(t, payload),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "empty body", token: getToken(t, instructor), body: []byte("{}"), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"name":    "this field is required",
				"program": "this field is required",
				"section": "this field is required",
				"members": "this field is required",
			}),
		},
		{name: "ok", token: getToken(t, instructor), body: marchallObj(t, payload), wantCode: http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, "/v1/groups", tt.token, tt.body)
			app.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantCode == http.StatusCreated {
				var grp group.Group
				if err := json.Unmarshal(rec.Body.Bytes(), &grp); err != nil {
					t.Fatalf("unmarshalling Group: %v", err)
				}
				if grp.ID == "" || grp.Name != "Synthwave" || len(grp.Members) != 2 {
					t.Errorf("unexpected group: %+v", grp)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_groupApi_query(t *testing.T) {
	app := setup(t)

	instructor := testutil.CreateUser(t, usrRepo, "Prof. Cruz", "pcruz", "pcruz@test.cd", "", []string{user.RoleInstructor}, true)
	token := getToken(t, instructor)

	g1 := testutil.CreateGroup(t, grpRepo, "Synthwave", "BSIT", "4A", "Dr. Reyes", group.Member{StudentID: "s1", Name: "One"})
	g2 := testutil.CreateGroup(t, grpRepo, "Moonshot", "BSCS", "4B", "Prof. Cruz", group.Member{StudentID: "s2", Name: "Two"})
	archived := testutil.CreateGroup(t, grpRepo, "Oldies", "BSIT", "4A", "Dr. Reyes", group.Member{StudentID: "s3", Name: "Three"})
	if err := group.NewService(grpRepo).Archive(context.Background(), archived.ID); err != nil {
		t.Fatalf("Archive() failed: %v", err)
	}
	archived, err := grpRepo.GetGroupByID(context.Background(), archived.ID)
	if err != nil {
		t.Fatalf("GetGroupByID() failed: %v", err)
	}

	path := func(params map[string]string) string {
		v := make(url.Values)
		for key, val := range params {
			v.Add(key, val)
		}
		return "/v1/groups?" + v.Encode()
	}

	tests := []httpTest{
		{name: "auth required", path: "/v1/groups", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "active only by default", path: "/v1/groups", token: token,
			wantCode: http.StatusOK, wantData: marchallList(t, g1, g2),
		},
		{
			name: "include archived", path: path(map[string]string{"include_archived": "true"}), token: token,
			wantCode: http.StatusOK, wantData: marchallList(t, g1, g2, archived),
		},
		{
			name: "search by name", path: path(map[string]string{"search": "moon"}), token: token,
			wantCode: http.StatusOK, wantData: marchallList(t, g2),
		},
		{
			name: "search by adviser", path: path(map[string]string{"search": "reyes"}), token: token,
			wantCode: http.StatusOK, wantData: marchallList(t, g1),
		},
		{
			name: "filter by program", path: path(map[string]string{"program": "BSCS"}), token: token,
			wantCode: http.StatusOK, wantData: marchallList(t, g2),
		},
		{
			name: "filter by section", path: path(map[string]string{"section": "4A"}), token: token,
			wantCode: http.StatusOK, wantData: marchallList(t, g1),
		},
		{
			name: "no match", path: path(map[string]string{"search": "lol"}), token: token,
			wantCode: http.StatusOK, wantData: marchallList(t),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_groupApi_retrieveUpdateArchive(t *testing.T) {
	app := setup(t)

	instructor := testutil.CreateUser(t, usrRepo, "Prof. Cruz", "pcruz", "pcruz@test.cd", "", []string{user.RoleInstructor}, true)
	token := getToken(t, instructor)

	grp := testutil.CreateGroup(t, grpRepo, "Synthwave", "BSIT", "4A", "Dr. Reyes",
		group.Member{StudentID: "s1", Name: "One"},
		group.Member{StudentID: "s2", Name: "Two"},
	)

	t.Run("retrieve unknown", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/groups/lol", token)
		app.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"})}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("retrieve", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/groups/"+grp.ID, token)
		app.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, grp)}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("update metadata", func(t *testing.T) {
		body := marchallObj(t, group.UpdateGroup{Adviser: "Prof. Ramos"})
		req, rec := newAuthRequest(http.MethodPut, "/v1/groups/"+grp.ID, token, body)
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		var updated group.Group
		if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
			t.Fatalf("unmarshalling Group: %v", err)
		}
		if updated.Adviser != "Prof. Ramos" {
			t.Errorf("adviser = %s, want Prof. Ramos", updated.Adviser)
		}
		if len(updated.Members) != 2 {
			t.Errorf("members = %d, want unchanged 2", len(updated.Members))
		}
	})

	t.Run("update removes blank member slots", func(t *testing.T) {
		body := marchallObj(t, group.UpdateGroup{Members: []group.Member{
			{StudentID: "s1", Name: "One"},
			{StudentID: "  ", Name: "gone"},
		}})
		req, rec := newAuthRequest(http.MethodPut, "/v1/groups/"+grp.ID, token, body)
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		var updated group.Group
		if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
			t.Fatalf("unmarshalling Group: %v", err)
		}
		if len(updated.Members) != 1 || updated.Members[0].StudentID != "s1" {
			t.Errorf("unexpected members: %+v", updated.Members)
		}
	})

	t.Run("archive", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/groups/"+grp.ID, token)
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		archived, err := grpRepo.GetGroupByID(context.Background(), grp.ID)
		if err != nil {
			t.Fatalf("GetGroupByID() failed: %v", err)
		}
		if !archived.Archived {
			t.Error("expected group to be archived")
		}
	})
}
