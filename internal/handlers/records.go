package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kakeibo/internal/logging"
	"kakeibo/internal/models"

	"github.com/sirupsen/logrus"
)

// CategoryDef defines the properties of a suggested category.
type CategoryDef struct {
	ID   string
	Name string
	Icon string
}

var categories = []CategoryDef{
	{"food", "食費", "🍽️"},
	{"commute", "交通費", "🚌"},
	{"housing", "住居", "🏠"},
	{"utilities", "光熱費", "💡"},
	{"entertainment", "娯楽", "🎮"},
	{"gifts", "贈答", "🎁"},
	{"salary", "給与", "💴"},
	{"other", "その他", "📦"},
}

func categoryIcon(category string) string {
	catLower := strings.ToLower(category)
	for _, c := range categories {
		if c.ID == catLower || c.Name == category {
			return c.Icon
		}
	}
	return "📦"
}

// RecordItem represents a record in the list view.
type RecordItem struct {
	models.Record
	Icon     string
	IsIncome bool
}

// RecordGroup groups records by date.
type RecordGroup struct {
	Title   string
	Date    string
	Income  int64
	Expense int64
	Items   []RecordItem
}

// ListViewModel is the data passed to the list view template.
type ListViewModel struct {
	Income  int64
	Expense int64
	Groups  []RecordGroup
}

// AddRecordViewModel is the data passed to the add form template.
type AddRecordViewModel struct {
	Today      string
	Categories []CategoryDef
}

// AddRecordForm renders the form to create a new record.
func (h *Handlers) AddRecordForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "add_record.html", "収支の登録", AddRecordViewModel{
		Today:      time.Now().Format(models.DateLayout),
		Categories: categories,
	})
}

// AddRecord stores a record for the session user and returns to the form.
func (h *Handlers) AddRecord(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}

	amount, err := strconv.ParseInt(r.FormValue("amount"), 10, 64)
	if err != nil {
		// a non-numeric amount is treated as a server fault, not a form error
		h.serverError(w, r, fmt.Errorf("parse amount: %w", err))
		return
	}
	date, err := time.Parse(models.DateLayout, r.FormValue("date"))
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	typ, err := models.ParseRecordType(r.FormValue("type"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	category := r.FormValue("category")

	id, err := h.db.CreateRecord(r.Context(), session.UserID, date, category, amount, typ)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	h.metrics.RecordsCreatedTotal.WithLabelValues(string(typ)).Inc()
	logging.FromContext(r.Context()).WithFields(logrus.Fields{
		"user_id":   session.UserID,
		"record_id": id,
		"type":      typ,
	}).Info("Record created")

	http.Redirect(w, r, "/add_record", http.StatusFound)
}

// ListRecords renders every record of the session user, grouped by day.
func (h *Handlers) ListRecords(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())

	records, err := h.db.ListRecords(r.Context(), session.UserID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	h.render(w, r, "records.html", "収支一覧", groupRecords(records, time.Now()))
}

// groupRecords keeps the incoming order, which is latest date first.
func groupRecords(records []models.Record, now time.Time) ListViewModel {
	var vm ListViewModel
	for _, rec := range records {
		dateStr := rec.Date.Format(models.DateLayout)
		if len(vm.Groups) == 0 || vm.Groups[len(vm.Groups)-1].Date != dateStr {
			vm.Groups = append(vm.Groups, RecordGroup{Date: dateStr, Title: formatGroupTitle(rec.Date, now)})
		}
		group := &vm.Groups[len(vm.Groups)-1]

		isIncome := rec.Type == models.Income
		if isIncome {
			group.Income += rec.Amount
			vm.Income += rec.Amount
		} else {
			group.Expense += rec.Amount
			vm.Expense += rec.Amount
		}

		group.Items = append(group.Items, RecordItem{
			Record:   rec,
			Icon:     categoryIcon(rec.Category),
			IsIncome: isIncome,
		})
	}
	return vm
}

// DeleteRecord removes one of the session user's records. Unknown or
// foreign ids are ignored.
func (h *Handlers) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	affected, err := h.db.DeleteRecord(r.Context(), session.UserID, id)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if affected > 0 {
		h.metrics.RecordsDeletedTotal.Add(float64(affected))
	} else {
		logging.FromContext(r.Context()).WithFields(logrus.Fields{
			"user_id":   session.UserID,
			"record_id": id,
		}).Debug("Delete matched no record")
	}

	http.Redirect(w, r, "/records", http.StatusFound)
}

func formatGroupTitle(date, now time.Time) string {
	dateStr := date.Format(models.DateLayout)

	if dateStr == now.Format(models.DateLayout) {
		return "今日"
	}
	if dateStr == now.AddDate(0, 0, -1).Format(models.DateLayout) {
		return "昨日"
	}
	return date.Format("2006-01-02 (Mon)")
}
