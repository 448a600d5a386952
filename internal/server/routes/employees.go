package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"flowdesk/internal/directory"
)

type EmployeeRoutes struct {
	server ServerInterface
}

func NewEmployeeRoutes(server ServerInterface) *EmployeeRoutes {
	return &EmployeeRoutes{server: server}
}

func (er *EmployeeRoutes) RegisterRoutes(r *gin.Engine) {
	middleware := NewMiddleware(er.server)

	r.POST("/companies", middleware.AuthMiddleware(), er.registerCompanyHandler)
	r.GET("/employees", middleware.AuthMiddleware(), er.listEmployeesHandler)
	r.PATCH("/employees/:id", middleware.AuthMiddleware(), er.updateEmployeeHandler)
}

type registerCompanyRequest struct {
	Name string `json:"name"`
}

func (er *EmployeeRoutes) registerCompanyHandler(c *gin.Context) {
	var req registerCompanyRequest
	if !bindJSON(c, &req) {
		return
	}

	company, err := er.server.GetDirectory().RegisterCompany(c.Request.Context(), req.Name, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"company": company})
}

func (er *EmployeeRoutes) listEmployeesHandler(c *gin.Context) {
	employees, err := er.server.GetDirectory().ListEmployees(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"employees": employees})
}

func (er *EmployeeRoutes) updateEmployeeHandler(c *gin.Context) {
	var patch directory.EmployeePatch
	if !bindJSON(c, &patch) {
		return
	}

	entry, err := er.server.GetDirectory().UpdateEmployee(c.Request.Context(), c.Param("id"), patch, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"employee": entry})
}
