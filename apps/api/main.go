package main

import (
	"context"
	"database/sql"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/trezcool/dojo/apps/api/echo"
	"github.com/trezcool/dojo/core"
	"github.com/trezcool/dojo/core/activity"
	"github.com/trezcool/dojo/core/attendance"
	"github.com/trezcool/dojo/core/booking"
	"github.com/trezcool/dojo/core/entitlement"
	"github.com/trezcool/dojo/core/subscription"
	"github.com/trezcool/dojo/core/user"
	emailsvc "github.com/trezcool/dojo/services/email"
	logsvc "github.com/trezcool/dojo/services/logger"
	"github.com/trezcool/dojo/storage/database"
	inmemdb "github.com/trezcool/dojo/storage/database/inmem"
	sqlxrepos "github.com/trezcool/dojo/storage/database/sqlx"
)

// memoryEngine runs the API on the in-memory store, without a database.
const memoryEngine = "memory"

const (
	// gates idle for longer than gateIdleTimeout are dropped.
	gateIdleTimeout = 30 * time.Minute
	// lapsed subscriptions are expired, and the gates granted on them reset, every subscriptionSweepInterval.
	subscriptionSweepInterval = 5 * time.Minute
)

type repositories struct {
	users         user.Repository
	subscriptions subscription.Repository
	bookings      booking.Repository
	attendance    attendance.Repository
	activity      activity.Repository
}

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up storage
	var repos repositories
	if conf.Database.Engine == memoryEngine {
		logger.Info("using the in-memory store: data is lost on shutdown")
		repos = memoryRepositories()
	} else {
		db, err := setUpDB(conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
		}
		defer func() {
			if err = db.Close(); err != nil {
				dbLogger.Error("Failed to close", err)
			}
		}()
		repos = sqlRepositories(sqlx.NewDb(db, conf.Database.Engine))
	}

	// set up services
	mailSvc := emailsvc.NewService(conf, logger)
	recorder := activity.NewRecorder(repos.activity, logger)
	defer recorder.Wait()

	usrSvc := user.NewService(repos.users)
	resolver := user.NewDefaultRoleResolver(conf.AdminEmails, repos.users, logger)
	subSvc := subscription.NewService(repos.subscriptions, conf.Billing)
	bookingSvc := booking.NewService(repos.bookings)
	attendanceSvc := attendance.NewService(repos.attendance, bookingSvc, repos.users, recorder)
	notifier := activity.NewNotifier(mailSvc, recorder, conf.AdminEmails, logger)

	gateOpts := entitlement.OptionsFrom(conf.Entitlement, logger)
	gates := entitlement.NewRegistry(func(id user.Identity) *entitlement.Gate {
		return entitlement.NewGate(id, resolver, subSvc, gateOpts)
	})

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	subscription.InitValidators(validate, translator)
	attendance.InitValidators(validate, translator)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.Publish("entitlement_gates", expvar.Func(func() interface{} { return gates.Len() }))

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// drop the gates of sessions gone quiet
	pruneCtx, stopPruning := context.WithCancel(context.Background())
	defer stopPruning()
	go func() {
		ticker := time.NewTicker(gateIdleTimeout / 2)
		defer ticker.Stop()
		for {
			select {
			case <-pruneCtx.Done():
				return
			case <-ticker.C:
				if n := gates.Prune(gateIdleTimeout); n > 0 {
					logger.Debug(fmt.Sprintf("pruned %d idle entitlement gates", n))
				}
			}
		}
	}()
	go func() {
		ticker := time.NewTicker(subscriptionSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pruneCtx.Done():
				return
			case <-ticker.C:
				sweepSubscriptions(pruneCtx, subSvc, gates, logger)
			}
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:            conf,
			Logger:          logger,
			Validate:        validate,
			Translator:      translator,
			UserSvc:         usrSvc,
			Resetter:        user.NewResetter(conf, usrSvc, mailSvc, validate),
			Resolver:        resolver,
			Gates:           gates,
			SubscriptionSvc: subSvc,
			BookingSvc:      bookingSvc,
			AttendanceSvc:   attendanceSvc,
			Recorder:        recorder,
			Notifier:        notifier,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err := server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func sqlRepositories(db *sqlx.DB) repositories {
	return repositories{
		users:         sqlxrepos.NewUserRepository(db),
		subscriptions: sqlxrepos.NewSubscriptionRepository(db),
		bookings:      sqlxrepos.NewBookingRepository(db),
		attendance:    sqlxrepos.NewAttendanceRepository(db),
		activity:      sqlxrepos.NewActivityRepository(db),
	}
}

func memoryRepositories() repositories {
	db := inmemdb.NewDB()
	return repositories{
		users:         inmemdb.NewUserRepository(db),
		subscriptions: inmemdb.NewSubscriptionRepository(db),
		bookings:      inmemdb.NewBookingRepository(db),
		attendance:    inmemdb.NewAttendanceRepository(db),
		activity:      inmemdb.NewActivityRepository(db),
	}
}

// sweepSubscriptions expires the lapsed subscriptions and resets the gates that relied on them,
// including subscriptions ended by another process such as the admin CLI.
func sweepSubscriptions(ctx context.Context, subSvc subscription.Service, gates *entitlement.Registry, logger core.Logger) {
	expired, err := subSvc.ExpireLapsed(ctx)
	if err != nil {
		logger.Error("expiring lapsed subscriptions", err)
	}
	for _, sub := range expired {
		gates.ResetMember(sub.MemberID)
	}

	n, err := gates.Revalidate(ctx, subSvc)
	if err != nil {
		logger.Error("revalidating entitlement gates", err)
	}
	if len(expired) > 0 || n > 0 {
		logger.Info(fmt.Sprintf("%d subscription(s) expired, %d entitlement gate(s) reset", len(expired), n))
	}
}
