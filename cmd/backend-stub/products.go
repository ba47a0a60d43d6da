package main

import (
	"net/http"

	"storefront/internal/models"
)

var products = []models.ProductData{
	{ID: 1, Name: "Tirages 10x15", Description: "Papier Kodak Royal brillant ou mat.", Price: 0.25, InStock: 1000, Category: "tirages", IconName: "Image"},
	{ID: 2, Name: "Planche photos d'identité", Description: "Conforme aux normes ANTS.", Price: 12, InStock: 200, Category: "identite", IconName: "UserIcon"},
	{ID: 3, Name: "Mug personnalisé", Description: "Céramique blanche, impression pleine surface.", Price: 14.9, InStock: 25, Category: "cadeaux", IconName: "Gift"},
	{ID: 4, Name: "Développement pellicule 135", Description: "Couleur C-41, scans inclus.", Price: 9.9, InStock: 0, Category: "film", IconName: "Film"},
}

func listProducts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, products)
}
