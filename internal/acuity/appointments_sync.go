package acuity

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/araquach/acuity-datahub/internal/models"
)

// syncAppointments walks every active stored calendar. Calendars run on up
// to Cfg.Workers goroutines; a failing calendar never stops the others.
func (r *Runner) syncAppointments(ctx context.Context, sum *Summary) error {
	lg := r.Logger

	start, end, err := r.Cfg.AppointmentWindow(r.now())
	if err != nil {
		return err
	}

	calendars, err := r.Calendars.ListActive()
	if err != nil {
		return fmt.Errorf("list calendars: %w", err)
	}
	if len(calendars) == 0 {
		sum.Warnings = append(sum.Warnings, "no active calendars stored; nothing to sync")
		lg.Printf("⚠️ No active calendars stored; run with -scope calendars first")
		return nil
	}

	lg.Printf("📆 appointments: %d calendars, window %s → %s",
		len(calendars), start.Format("2006-01-02"), end.Format("2006-01-02"))

	results := make([]CalendarSummary, len(calendars))

	var g errgroup.Group
	g.SetLimit(max(r.Cfg.Workers, 1))
	for i := range calendars {
		i := i
		g.Go(func() error {
			results[i] = r.syncCalendar(ctx, calendars[i], Filters{
				CalendarID: calendars[i].AcuityCalendarID,
				MinDate:    start,
				MaxDate:    end,
				PageSize:   r.Cfg.PageSize,
				Canceled:   "all",
			})
			return nil
		})
	}
	_ = g.Wait()

	for _, cs := range results {
		sum.Created += cs.Created
		sum.Updated += cs.Updated
		sum.Skipped += cs.Skipped
		sum.Warnings = append(sum.Warnings, cs.Warnings...)
		if cs.Err != nil {
			sum.Warnings = append(sum.Warnings, fmt.Sprintf("calendar %s failed: %v", cs.CalendarID, cs.Err))
		}
	}
	sum.PerCalendar = results
	return nil
}

// syncCalendar pages through one calendar until an empty page, a repeated
// page or the page ceiling. At the ceiling one more page is requested only to
// tell a calendar that ends exactly there from one that was cut short.
func (r *Runner) syncCalendar(ctx context.Context, cal models.Calendar, f Filters) CalendarSummary {
	lg := r.Logger.WithField("calendar", cal.AcuityCalendarID)
	cs := CalendarSummary{CalendarID: cal.AcuityCalendarID, Name: cal.Name}
	guard := NewPageGuard()

	fail := func(err error) CalendarSummary {
		cs.Halt = HaltError
		cs.Err = err
		cs.Error = err.Error()
		cs.Appointments = guard.Seen()
		lg.WithError(err).Error("calendar sync aborted")
		return cs
	}
	stop := func(halt string) CalendarSummary {
		cs.Halt = halt
		cs.Appointments = guard.Seen()
		lg.Infof("✅ %s: %d pages, %d appointments, created=%d updated=%d skipped=%d (%s)",
			cal.Name, cs.Pages, cs.Appointments, cs.Created, cs.Updated, cs.Skipped, halt)
		return cs
	}

	maxPages := r.Cfg.MaxPages
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		rows, err := r.Client.FetchAppointmentsPage(ctx, f, page)
		if err != nil {
			return fail(err)
		}
		if len(rows) == 0 {
			return stop(HaltEmptyPage)
		}

		if guard.Observe(pageIDs(rows)) {
			lg.Warnf("🔁 page %d repeats earlier appointments; stopping this calendar", page)
			return stop(HaltLoopDetected)
		}
		cs.Pages++

		res, err := r.Reconciler.Reconcile(ctx, cal.AcuityCalendarID, rows)
		cs.Skipped += res.Skipped
		cs.Warnings = append(cs.Warnings, res.Warnings...)
		if err != nil {
			return fail(fmt.Errorf("reconcile page %d: %w", page, err))
		}
		cs.Created += res.Created
		cs.Updated += res.Updated
		lg.Debugf("page %d: %d records, created=%d updated=%d skipped=%d", page, len(rows), res.Created, res.Updated, res.Skipped)

		if maxPages > 0 && page >= maxPages {
			return stop(r.ceilingHalt(ctx, lg, &cs, f, page))
		}
	}
}

// ceilingHalt fetches the page after the ceiling without storing it.
func (r *Runner) ceilingHalt(ctx context.Context, lg *logrus.Entry, cs *CalendarSummary, f Filters, page int) string {
	next, err := r.Client.FetchAppointmentsPage(ctx, f, page+1)
	if err == nil && len(next) == 0 {
		return HaltEmptyPage
	}

	w := fmt.Sprintf("calendar %s: reached page limit (%d); some appointments may not be fetched", cs.CalendarID, page)
	if err != nil {
		w = fmt.Sprintf("calendar %s: reached page limit (%d) and could not check for more: %v", cs.CalendarID, page, err)
	}
	cs.Warnings = append(cs.Warnings, w)
	lg.Warn(w)
	return HaltCeiling
}

func pageIDs(rows []models.AcuityAppointment) []string {
	ids := make([]string, 0, len(rows))
	for _, a := range rows {
		if id := strings.TrimSpace(a.ID.String()); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
