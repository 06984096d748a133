package staff

import "testing"

func TestCoversAreaCaseInsensitive(t *testing.T) {
	member := &Staff{Role: RoleSales, AllottedAreas: []string{"Bandra", "Andheri"}}
	if !member.CoversArea([]string{"bandra"}) {
		t.Fatal("expected case-insensitive match")
	}
	if member.CoversArea([]string{"juhu"}) {
		t.Fatal("unexpected match for foreign area")
	}
}

func TestCoversAreaSentinels(t *testing.T) {
	all := &Staff{Role: RoleSales, AllottedAreas: []string{"ALL"}}
	if !all.CoversArea([]string{"juhu"}) {
		t.Fatal("\"all\" must cover every line")
	}

	member := &Staff{Role: RoleSales, AllottedAreas: []string{"bandra"}}
	if !member.CoversArea([]string{"both"}) {
		t.Fatal("a \"both\" line must match every staff member")
	}
}

func TestCoversAreaEmpty(t *testing.T) {
	member := &Staff{Role: RoleSales}
	if member.CoversArea([]string{"bandra"}) {
		t.Fatal("no allotted areas must not match")
	}
	member.AllottedAreas = []string{" ", ""}
	if member.CoversArea([]string{"bandra"}) {
		t.Fatal("blank areas must not match")
	}
}

func TestIsManagement(t *testing.T) {
	for _, role := range []string{RoleSuperAdmin, RoleAdmin, RoleDeveloper} {
		if !(&Staff{Role: role}).IsManagement() {
			t.Errorf("%s should be management", role)
		}
	}
	for _, role := range []string{RoleSales, RoleSalesTeamLead, RoleLeadGen, RoleAdvert} {
		if (&Staff{Role: role}).IsManagement() {
			t.Errorf("%s should not be management", role)
		}
	}
}
