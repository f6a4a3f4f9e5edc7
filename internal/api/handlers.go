package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gouncertain/app"
	"gouncertain/domain/core"
	"gouncertain/domain/mask"
	"gouncertain/internal/benchmark"
	"gouncertain/internal/errors"
	"gouncertain/internal/estimator"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"strategies": mask.AllNames,
		"defaults":   mask.DefaultNames,
		"estimators": estimator.Kinds,
	})
}

func (s *Server) handleEstimate(c *gin.Context) {
	var req EstimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": errors.CodeInvalidInput})
		return
	}

	cfg, seed, err := req.Knobs.resolve(s.defaults)
	if err != nil {
		respondError(c, err)
		return
	}
	strategy := s.defaults.Strategy
	if req.Strategy != "" {
		if strategy, err = mask.ParseName(req.Strategy); err != nil {
			respondError(c, err)
			return
		}
	}
	net, err := req.Network.build(seed)
	if err != nil {
		respondError(c, err)
		return
	}
	pool, err := toDense(req.Pool, "pool")
	if err != nil {
		respondError(c, err)
		return
	}
	train, err := toDense(req.Train, "train")
	if err != nil {
		respondError(c, err)
		return
	}

	res, err := s.service.Estimate(c.Request.Context(), app.EstimateRequest{
		Predictor: net,
		Pool:      pool,
		TrainX:    train,
		TrainY:    req.Labels,
		Strategy:  strategy,
		Estimator: cfg,
		Seed:      seed,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleCompare(c *gin.Context) {
	var req CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": errors.CodeInvalidInput})
		return
	}

	cfg, seed, err := req.Knobs.resolve(s.defaults)
	if err != nil {
		respondError(c, err)
		return
	}
	names := append([]mask.Name(nil), mask.DefaultNames...)
	if len(req.Strategies) > 0 {
		names = names[:0]
		for _, raw := range req.Strategies {
			n, err := mask.ParseName(raw)
			if err != nil {
				respondError(c, err)
				return
			}
			names = append(names, n)
		}
	}
	net, err := req.Network.build(seed)
	if err != nil {
		respondError(c, err)
		return
	}
	pool, err := toDense(req.Pool, "pool")
	if err != nil {
		respondError(c, err)
		return
	}
	train, err := toDense(req.Train, "train")
	if err != nil {
		respondError(c, err)
		return
	}

	summaries, err := s.service.Compare(c.Request.Context(), benchmark.Request{
		Predictor:   net,
		Pool:        pool,
		TrainX:      train,
		TrainY:      req.Labels,
		Strategies:  names,
		Estimator:   cfg,
		Seed:        seed,
		PoolY:       req.PoolLabels,
		OutOfDomain: req.OutOfDomain,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"estimator": cfg.Kind,
		"runs":      cfg.NNRuns,
		"rate":      cfg.DropoutRate,
		"summaries": summaries,
	})
}

func (s *Server) handleListRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 0 {
		respondError(c, errors.InvalidInput("limit must be a non-negative integer"))
		return
	}
	runs, err := s.service.ListRuns(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleGetRun(c *gin.Context) {
	runID, err := core.ParseRunID(c.Param("runId"))
	if err != nil {
		respondError(c, errors.WithCode(errors.CodeInvalidInput, err))
		return
	}
	res, err := s.service.GetRun(c.Request.Context(), runID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func respondError(c *gin.Context, err error) {
	c.JSON(errors.HTTPStatus(err), gin.H{"error": err.Error(), "code": errors.Classify(err)})
}
