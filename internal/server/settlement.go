package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetSettlement(c *gin.Context) {
	settlementID, ok := parseID(c, c.Param("id"), "id")
	if !ok {
		return
	}

	settlement, err := s.settlementSvc.Get(c.Request.Context(), settlementID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, settlement)
}

func (s *Server) GetSettlementItems(c *gin.Context) {
	settlementID, ok := parseID(c, c.Param("id"), "id")
	if !ok {
		return
	}

	items, err := s.settlementSvc.Items(c.Request.Context(), settlementID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) GetMonthEstimate(c *gin.Context) {
	ownerID, ok := parseID(c, c.Param("id"), "id")
	if !ok {
		return
	}

	estimate, err := s.settlementSvc.CurrentMonthEstimate(c.Request.Context(), ownerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, estimate)
}
