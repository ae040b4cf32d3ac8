package main

import (
	"errors"
	"strconv"
	"time"

	"github.com/john-matlock-eng/journal-vault/global"
	"github.com/john-matlock-eng/journal-vault/repository"
	"github.com/john-matlock-eng/journal-vault/services"
	"github.com/john-matlock-eng/journal-vault/types"
)

// Configure DB Repositories and create DB Selector
func ConfigDBSelector() repository.DBSelector {
	// configure Repository (couchDB)
	repoUrl := global.Conf.CouchDB.Scheme + "://" + global.Conf.CouchDB.Host + ":" + strconv.Itoa(global.Conf.CouchDB.Port)
	keysRepo, keysRepoErr := repository.NewCouchDBRepository(repoUrl, repository.EncryptionKeys, global.Conf.CouchDB.Username, global.Conf.CouchDB.Password, false)
	sharesRepo, sharesRepoErr := repository.NewCouchDBRepository(repoUrl, repository.Shares, global.Conf.CouchDB.Username, global.Conf.CouchDB.Password, false)
	analysisRepo, analysisRepoErr := repository.NewCouchDBRepository(repoUrl, repository.AnalysisRequests, global.Conf.CouchDB.Username, global.Conf.CouchDB.Password, false)
	mappingRepo, mappingRepoErr := repository.NewCouchDBRepository(repoUrl, repository.EmailMappings, global.Conf.CouchDB.Username, global.Conf.CouchDB.Password, false)

	repoErr := errors.Join(keysRepoErr, sharesRepoErr, analysisRepoErr, mappingRepoErr)
	if repoErr != nil {
		global.Logger.Log("error", "Failed to create repositories", "error", repoErr.Error())
		panic(repoErr)
	}

	// REPOSITORY definitions
	dbSelector := repository.NewCouchDBSelector()
	dbSelector.AddDB(keysRepo)
	dbSelector.AddDB(sharesRepo)
	dbSelector.AddDB(analysisRepo)
	dbSelector.AddDB(mappingRepo)

	return dbSelector
}

func ConfigDBIndexing(dbSelector *repository.CouchDBSelector, environment *types.Environment) {
	shareService := services.NewShareService(dbSelector, environment)

	// Create INDEXES
	sharesRepo, srErr := dbSelector.ChooseDB(repository.Shares)
	if srErr != nil {
		panic(srErr)
	}
	if err := repository.CreateShareOwnerIndex(sharesRepo); err != nil {
		panic(err)
	}
	if err := repository.CreateShareIdempotencyIndex(sharesRepo); err != nil {
		panic(err)
	}
	if err := repository.CreateShareExpiryIndex(sharesRepo); err != nil {
		panic(err)
	}

	// cron jobs
	// expired grants stay denied by the read path; the sweep is storage hygiene
	environment.Cron.AddFunc("@every 1h", func() { shareService.RemoveExpiredGrants(28 * 24 * time.Hour) })
	environment.Cron.Start()
}
